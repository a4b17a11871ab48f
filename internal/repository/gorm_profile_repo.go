package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hitoshi/wxprofile/internal/model"
)

// GormProfileRepo はgormを使用した利用者情報リポジトリ。
type GormProfileRepo struct {
	db *gorm.DB
}

// NewGormProfileRepo はGormProfileRepoを生成する。
func NewGormProfileRepo(db *gorm.DB) *GormProfileRepo {
	return &GormProfileRepo{db: db}
}

// ListByCreator は作成者の利用者情報をcreated_at, idの昇順で取得する。
func (r *GormProfileRepo) ListByCreator(ctx context.Context, creatorID string, offset, limit int) ([]*model.Profile, error) {
	var recs []profileRecord
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	profiles := make([]*model.Profile, 0, len(recs))
	for i := range recs {
		profiles = append(profiles, recs[i].toModel())
	}
	return profiles, nil
}

// FindByIDAndCreator はIDと作成者で利用者情報を取得する。見つからない場合はnilを返す。
func (r *GormProfileRepo) FindByIDAndCreator(ctx context.Context, id, creatorID string) (*model.Profile, error) {
	var rec profileRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND creator_id = ?", id, creatorID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return rec.toModel(), nil
}

// Create は利用者情報を作成する。
func (r *GormProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	rec := newProfileRecord(profile)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	profile.CreatedAt = rec.CreatedAt
	return nil
}

// Update はpatchのうち非nilのフィールドだけを更新する。
// 空のpatchは存在確認のみ行う。
func (r *GormProfileRepo) Update(ctx context.Context, id, creatorID string, patch model.ProfilePatch) (bool, error) {
	if patch.IsEmpty() {
		p, err := r.FindByIDAndCreator(ctx, id, creatorID)
		if err != nil {
			return false, err
		}
		return p != nil, nil
	}

	result := r.db.WithContext(ctx).
		Model(&profileRecord{}).
		Where("id = ? AND creator_id = ?", id, creatorID).
		Updates(patchColumns(patch))
	if result.Error != nil {
		return false, fmt.Errorf("failed to update profile: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteByIDAndCreator はIDと作成者が一致する利用者情報を削除する。
func (r *GormProfileRepo) DeleteByIDAndCreator(ctx context.Context, id, creatorID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND creator_id = ?", id, creatorID).
		Delete(&profileRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete profile: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// compile-time interface check
var _ ProfileRepository = (*GormProfileRepo)(nil)
