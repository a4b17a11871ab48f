// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントの権限区分を表す。
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "subadmin"
	RoleNormal   Role = "normal"
)

// Valid は定義済みの権限区分かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSubAdmin, RoleNormal:
		return true
	}
	return false
}

// Account はWeChatのopenidに紐づくサービス利用アカウントを表す。
// WechatIDは作成後に変更しない。
type Account struct {
	ID        string
	WechatID  string
	Role      Role
	CreatedAt time.Time
}

// Session はアカウントごとに1件だけ存在するログイン状態を表す。
// Tokenがベアラートークンとして認証に使われる。
type Session struct {
	ID         int64
	AccountID  string
	LastLogin  time.Time
	SessionKey string
	Token      string
}

// IsStale は最終ログインからwindowを超えて経過しているかを返す。
func (s *Session) IsStale(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastLogin) > window
}
