package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hitoshi/wxprofile/internal/model"
)

// GormAccountRepo はgormを使用したアカウントリポジトリ。
type GormAccountRepo struct {
	db *gorm.DB
}

// NewGormAccountRepo はGormAccountRepoを生成する。
func NewGormAccountRepo(db *gorm.DB) *GormAccountRepo {
	return &GormAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *GormAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	var rec accountRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return rec.toModel(), nil
}

// FindByWechatID はWeChatのopenidでアカウントを検索する。見つからない場合はnilを返す。
func (r *GormAccountRepo) FindByWechatID(ctx context.Context, wechatID string) (*model.Account, error) {
	var rec accountRecord
	err := r.db.WithContext(ctx).Where("wechat_id = ?", wechatID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by wechat id: %w", err)
	}
	return rec.toModel(), nil
}

// Create はアカウントを作成する。
// ON CONFLICT DO NOTHINGで挿入し、0件の場合はErrDuplicateを返す。
func (r *GormAccountRepo) Create(ctx context.Context, account *model.Account) error {
	rec := newAccountRecord(account)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return fmt.Errorf("failed to create account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	account.CreatedAt = rec.CreatedAt
	return nil
}

// compile-time interface check
var _ AccountRepository = (*GormAccountRepo)(nil)
