package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wxprofile/internal/middleware"
	"github.com/hitoshi/wxprofile/internal/model"
)

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidPagination, model.ErrCodeInvalidProfile:
		return http.StatusBadRequest
	case model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeWechatInvalidCode:
		return http.StatusBadRequest
	case model.ErrCodeWechatSystemBusy:
		return http.StatusServiceUnavailable
	case model.ErrCodeWechatRiskyUser:
		return http.StatusForbidden
	case model.ErrCodeWechatRateLimited, model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeWechatUnsupportedError:
		return http.StatusNotImplemented
	case model.ErrCodeBadGateway:
		return http.StatusBadGateway
	case model.ErrCodeWechatUnavailable, model.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
