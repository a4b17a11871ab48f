// Package profile は利用者情報の管理ロジックを提供する。
// 全ての操作は呼び出し元アカウントが作成した利用者情報に限定される。
package profile

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/wxprofile/internal/model"
	"github.com/hitoshi/wxprofile/internal/repository"
	"github.com/hitoshi/wxprofile/internal/security"
)

// DefaultMaxPageSize は1回の一覧取得で返す最大件数のデフォルト値。
const DefaultMaxPageSize = 100

// 各項目の最大文字数（カラム定義と一致させる）。
const (
	maxIDNoLen    = 20
	maxNameLen    = 32
	maxPhoneLen   = 20
	maxAddressLen = 64
)

// ServiceConfig は利用者情報サービスの設定。
type ServiceConfig struct {
	MaxPageSize int
}

// Service は利用者情報のCRUDを提供する。
type Service struct {
	repo      repository.ProfileRepository
	sanitizer security.TextSanitizer
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ProfileRepository, sanitizer security.TextSanitizer, config ServiceConfig) *Service {
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = DefaultMaxPageSize
	}
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
	}
}

// List はアカウントが作成した利用者情報を作成順にstart件目からcount件返す。
func (s *Service) List(ctx context.Context, accountID string, start, count int) ([]*model.Profile, error) {
	if start < 0 {
		return nil, model.NewInvalidPaginationError("start は0以上である必要があります")
	}
	if count < 0 {
		return nil, model.NewInvalidPaginationError("count は0以上である必要があります")
	}
	if count > s.config.MaxPageSize {
		return nil, model.NewInvalidPaginationError(fmt.Sprintf("count は%d以下である必要があります", s.config.MaxPageSize))
	}
	if count == 0 {
		return []*model.Profile{}, nil
	}

	profiles, err := s.repo.ListByCreator(ctx, accountID, start, count)
	if err != nil {
		return nil, fmt.Errorf("利用者情報一覧の取得に失敗しました: %w", err)
	}
	return profiles, nil
}

// Create は利用者情報を作成する。作成者は常に呼び出し元アカウントになる。
func (s *Service) Create(ctx context.Context, accountID string, input model.ProfileInput) (*model.Profile, error) {
	// 1. 入力値のサニタイズと検証
	idNo, err := s.cleanText("id_no", input.IDNo, maxIDNoLen)
	if err != nil {
		return nil, err
	}
	name, err := s.cleanText("name", input.Name, maxNameLen)
	if err != nil {
		return nil, err
	}
	phone, err := s.cleanText("phone", input.Phone, maxPhoneLen)
	if err != nil {
		return nil, err
	}
	address, err := s.cleanText("address", input.Address, maxAddressLen)
	if err != nil {
		return nil, err
	}
	imageID, err := normalizeImageID(input.ImageID)
	if err != nil {
		return nil, err
	}

	// 2. 保存
	p := &model.Profile{
		ID:        uuid.New().String(),
		CreatorID: accountID,
		IDNo:      idNo,
		Name:      name,
		Phone:     phone,
		Address:   address,
		ImageID:   imageID,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("利用者情報の作成に失敗しました: %w", err)
	}

	return p, nil
}

// Update は利用者情報を部分更新し、更新後の内容を返す。
// 指定されなかった項目は変更しない。他アカウントの利用者情報は存在しないものとして扱う。
func (s *Service) Update(ctx context.Context, accountID, profileID string, patch model.ProfilePatch) (*model.Profile, error) {
	id, err := parseProfileID(profileID)
	if err != nil {
		return nil, err
	}

	// 1. 入力値のサニタイズと検証
	clean := model.ProfilePatch{}
	if patch.Phone != nil {
		phone, err := s.cleanText("phone", *patch.Phone, maxPhoneLen)
		if err != nil {
			return nil, err
		}
		clean.Phone = &phone
	}
	if patch.Address != nil {
		address, err := s.cleanText("address", *patch.Address, maxAddressLen)
		if err != nil {
			return nil, err
		}
		clean.Address = &address
	}
	if patch.ImageID != nil {
		imageID, err := normalizeImageID(patch.ImageID)
		if err != nil {
			return nil, err
		}
		clean.ImageID = imageID
	}

	// 2. 所有者スコープで存在確認
	current, err := s.repo.FindByIDAndCreator(ctx, id, accountID)
	if err != nil {
		return nil, fmt.Errorf("利用者情報の取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewProfileNotFoundError(id)
	}
	if clean.IsEmpty() {
		return current, nil
	}

	// 3. 指定項目のみ更新
	found, err := s.repo.Update(ctx, id, accountID, clean)
	if err != nil {
		return nil, fmt.Errorf("利用者情報の更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewProfileNotFoundError(id)
	}

	applyPatch(current, clean)
	return current, nil
}

// Delete は利用者情報を削除する。
func (s *Service) Delete(ctx context.Context, accountID, profileID string) error {
	id, err := parseProfileID(profileID)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteByIDAndCreator(ctx, id, accountID)
	if err != nil {
		return fmt.Errorf("利用者情報の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewProfileNotFoundError(id)
	}
	return nil
}

// cleanText はマークアップを除去し、空でないことと最大文字数を検証する。
func (s *Service) cleanText(field, raw string, maxLen int) (string, error) {
	v := s.sanitizer.Sanitize(raw)
	if v == "" {
		return "", model.NewInvalidProfileError(field, "必須項目です")
	}
	if utf8.RuneCountInString(v) > maxLen {
		return "", model.NewInvalidProfileError(field, fmt.Sprintf("%d文字以内で入力してください", maxLen))
	}
	return v, nil
}

func parseProfileID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", model.NewInvalidRequestError("利用者情報IDの形式が不正です")
	}
	return id.String(), nil
}

func normalizeImageID(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, model.NewInvalidProfileError("image", "UUID形式で指定してください")
	}
	v := id.String()
	return &v, nil
}

func applyPatch(p *model.Profile, patch model.ProfilePatch) {
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.Address != nil {
		p.Address = *patch.Address
	}
	if patch.ImageID != nil {
		p.ImageID = patch.ImageID
	}
}
