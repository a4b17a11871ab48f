// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/wxprofile/internal/model"
)

// ErrDuplicate は一意制約により挿入が行われなかったことを表す。
// 同時ログインで同じ行を作成しようとした場合に返る。呼び出し側は再取得で解決する。
var ErrDuplicate = errors.New("duplicate record")

// ErrNotFound は更新対象の行が存在しなかったことを表す。
// 読み取りと更新の間にクリーンアップで削除された場合などに返る。
var ErrNotFound = errors.New("record not found")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByWechatID はWeChatのopenidでアカウントを検索する。見つからない場合はnilを返す。
	FindByWechatID(ctx context.Context, wechatID string) (*model.Account, error)

	// Create はアカウントを作成する。
	// 同じwechat_idが既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, account *model.Account) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// FindByAccountID はアカウントのセッションを取得する。見つからない場合はnilを返す。
	FindByAccountID(ctx context.Context, accountID string) (*model.Session, error)

	// FindByToken はベアラートークンでセッションを検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// Create はセッションを作成し、採番されたIDをsession.IDに設定する。
	// 同じアカウントのセッションが既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, session *model.Session) error

	// Update はlast_login、session_key、tokenを更新する。
	// 対象のセッションが存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, session *model.Session) error

	// DeleteIdleBefore はlast_loginがcutoffより前のセッションを削除し、削除件数を返す。
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProfileRepository は利用者情報の永続化インターフェース。
// 全ての操作は作成者アカウントでスコープされる。
type ProfileRepository interface {
	// ListByCreator は作成者の利用者情報を作成順（created_at, id）で取得する。
	ListByCreator(ctx context.Context, creatorID string, offset, limit int) ([]*model.Profile, error)

	// FindByIDAndCreator はIDと作成者で利用者情報を取得する。見つからない場合はnilを返す。
	FindByIDAndCreator(ctx context.Context, id, creatorID string) (*model.Profile, error)

	// Create は利用者情報を作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update はpatchのうち非nilのフィールドだけを更新する。
	// 対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, id, creatorID string, patch model.ProfilePatch) (bool, error)

	// DeleteByIDAndCreator はIDと作成者が一致する利用者情報を削除する。
	// 対象が存在しない場合はfalseを返す。
	DeleteByIDAndCreator(ctx context.Context, id, creatorID string) (bool, error)
}
