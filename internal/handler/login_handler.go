package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/wxprofile/internal/model"
)

// LoginServiceInterface はログインハンドラーが必要とするサービスインターフェース。
type LoginServiceInterface interface {
	// Login はWeChatのログインコードからセッションを発行する。
	Login(ctx context.Context, code string) (*model.Session, error)
}

// LoginHandler はWeChatログインのHTTPハンドラー。
type LoginHandler struct {
	service LoginServiceInterface
}

// NewLoginHandler はLoginHandlerを生成する。
func NewLoginHandler(service LoginServiceInterface) *LoginHandler {
	return &LoginHandler{service: service}
}

type loginRequest struct {
	WechatCode string `json:"wechat_code"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login はログインコードを検証してベアラートークンを返す。
// POST /wechat-login
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	session, err := h.service.Login(r.Context(), req.WechatCode)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: session.Token})
}
