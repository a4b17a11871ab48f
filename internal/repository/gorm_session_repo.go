package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hitoshi/wxprofile/internal/model"
)

// GormSessionRepo はgormを使用したセッションリポジトリ。
type GormSessionRepo struct {
	db *gorm.DB
}

// NewGormSessionRepo はGormSessionRepoを生成する。
func NewGormSessionRepo(db *gorm.DB) *GormSessionRepo {
	return &GormSessionRepo{db: db}
}

// FindByAccountID はアカウントのセッションを取得する。見つからない場合はnilを返す。
func (r *GormSessionRepo) FindByAccountID(ctx context.Context, accountID string) (*model.Session, error) {
	return r.findOne(ctx, "account_id = ?", accountID)
}

// FindByToken はベアラートークンでセッションを検索する。見つからない場合はnilを返す。
// 期限判定は呼び出し側で行う。
func (r *GormSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	return r.findOne(ctx, "token = ?", token)
}

func (r *GormSessionRepo) findOne(ctx context.Context, query string, arg string) (*model.Session, error) {
	var rec sessionRecord
	err := r.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return rec.toModel(), nil
}

// Create はセッションを作成する。
// 同じアカウントのセッションが既にある場合はErrDuplicateを返す。
func (r *GormSessionRepo) Create(ctx context.Context, session *model.Session) error {
	rec := newSessionRecord(session)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return fmt.Errorf("failed to create session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	session.ID = rec.ID
	return nil
}

// Update はlast_login、session_key、tokenを更新する。
// 対象のセッションが存在しない場合はErrNotFoundを返す。
func (r *GormSessionRepo) Update(ctx context.Context, session *model.Session) error {
	result := r.db.WithContext(ctx).
		Model(&sessionRecord{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"last_login":  session.LastLogin,
			"session_key": session.SessionKey,
			"token":       session.Token,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdleBefore はlast_loginがcutoffより前のセッションを削除する。
func (r *GormSessionRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_login < ?", cutoff).
		Delete(&sessionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete idle sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// compile-time interface check
var _ SessionRepository = (*GormSessionRepo)(nil)
