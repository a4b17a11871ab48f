package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/wxprofile/internal/middleware"
	"github.com/hitoshi/wxprofile/internal/model"
)

// ProfileServiceInterface は利用者情報ハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// List はアカウントが作成した利用者情報をページング付きで返す。
	List(ctx context.Context, accountID string, start, count int) ([]*model.Profile, error)
	// Create は利用者情報を作成する。
	Create(ctx context.Context, accountID string, input model.ProfileInput) (*model.Profile, error)
	// Update は利用者情報を部分更新する。
	Update(ctx context.Context, accountID, profileID string, patch model.ProfilePatch) (*model.Profile, error)
	// Delete は利用者情報を削除する。
	Delete(ctx context.Context, accountID, profileID string) error
}

// ProfileHandler は利用者情報管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// createProfileRequest は利用者情報作成リクエストのボディ。
// id と creator はサーバー側で決定するため受け付けない。
type createProfileRequest struct {
	IDNo    string  `json:"id_no"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Address string  `json:"address"`
	Image   *string `json:"image"`
}

// updateProfileRequest は利用者情報更新リクエストのボディ。
// 省略した項目は変更しない。
type updateProfileRequest struct {
	ID      string  `json:"id"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Image   *string `json:"image"`
}

// profileResponse は利用者情報のAPIレスポンス。
type profileResponse struct {
	ID      string  `json:"id"`
	Creator string  `json:"creator"`
	IDNo    string  `json:"id_no"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Address string  `json:"address"`
	Image   *string `json:"image"`
}

// List は利用者情報一覧を返す。
// GET /user-info/query?start=<n>&count=<n>
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	start, err := parseRequiredInt(r, "start")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}
	count, err := parseRequiredInt(r, "count")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}

	profiles, svcErr := h.service.List(r.Context(), accountID, start, count)
	if svcErr != nil {
		handleServiceError(w, r, svcErr)
		return
	}

	resp := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		resp = append(resp, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は利用者情報を作成する。
// POST /user-info/add
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	p, err := h.service.Create(r.Context(), accountID, model.ProfileInput{
		IDNo:    req.IDNo,
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
		ImageID: req.Image,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// Update は利用者情報を部分更新する。
// PUT /user-info/set
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.ID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("id は必須です"))
		return
	}

	p, err := h.service.Update(r.Context(), accountID, req.ID, model.ProfilePatch{
		Phone:   req.Phone,
		Address: req.Address,
		ImageID: req.Image,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// Delete は利用者情報を削除する。
// DELETE /user-info/delete?user_info_id=<uuid>
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	profileID := r.URL.Query().Get("user_info_id")
	if profileID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("user_info_id は必須です"))
		return
	}

	if err := h.service.Delete(r.Context(), accountID, profileID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// --- ヘルパー関数 ---

// requireAccountID はコンテキストから認証済みアカウントIDを取り出す。
// 取得できない場合は401を書き込んでfalseを返す。
func requireAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return accountID, true
}

// parseRequiredInt は必須の整数クエリパラメータを取得する。
func parseRequiredInt(r *http.Request, name string) (int, *model.APIError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, model.NewInvalidPaginationError(name + " は必須です")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewInvalidPaginationError(name + " は整数で指定してください")
	}
	return v, nil
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:      p.ID,
		Creator: p.CreatorID,
		IDNo:    p.IDNo,
		Name:    p.Name,
		Phone:   p.Phone,
		Address: p.Address,
		Image:   p.ImageID,
	}
}
