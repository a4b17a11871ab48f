package repository

import (
	"time"

	"github.com/hitoshi/wxprofile/internal/model"
)

// accountRecord はaccountsテーブルの行。
type accountRecord struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	WechatID  string `gorm:"column:wechat_id"`
	Role      string `gorm:"type:account_role"`
	CreatedAt time.Time
}

func (accountRecord) TableName() string { return "accounts" }

func newAccountRecord(a *model.Account) *accountRecord {
	return &accountRecord{
		ID:        a.ID,
		WechatID:  a.WechatID,
		Role:      string(a.Role),
		CreatedAt: a.CreatedAt,
	}
}

func (r *accountRecord) toModel() *model.Account {
	return &model.Account{
		ID:        r.ID,
		WechatID:  r.WechatID,
		Role:      model.Role(r.Role),
		CreatedAt: r.CreatedAt,
	}
}

// sessionRecord はsessionsテーブルの行。
type sessionRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	AccountID  string `gorm:"type:uuid"`
	LastLogin  time.Time
	SessionKey string
	Token      string `gorm:"type:uuid"`
}

func (sessionRecord) TableName() string { return "sessions" }

func newSessionRecord(s *model.Session) *sessionRecord {
	return &sessionRecord{
		ID:         s.ID,
		AccountID:  s.AccountID,
		LastLogin:  s.LastLogin,
		SessionKey: s.SessionKey,
		Token:      s.Token,
	}
}

func (r *sessionRecord) toModel() *model.Session {
	return &model.Session{
		ID:         r.ID,
		AccountID:  r.AccountID,
		LastLogin:  r.LastLogin,
		SessionKey: r.SessionKey,
		Token:      r.Token,
	}
}

// profileRecord はprofilesテーブルの行。
type profileRecord struct {
	ID        string  `gorm:"primaryKey;type:uuid"`
	CreatorID string  `gorm:"type:uuid"`
	IDNo      string  `gorm:"column:id_no"`
	Name      string
	Phone     string
	Address   string
	ImageID   *string `gorm:"type:uuid"`
	CreatedAt time.Time
}

func (profileRecord) TableName() string { return "profiles" }

func newProfileRecord(p *model.Profile) *profileRecord {
	return &profileRecord{
		ID:        p.ID,
		CreatorID: p.CreatorID,
		IDNo:      p.IDNo,
		Name:      p.Name,
		Phone:     p.Phone,
		Address:   p.Address,
		ImageID:   p.ImageID,
		CreatedAt: p.CreatedAt,
	}
}

func (r *profileRecord) toModel() *model.Profile {
	return &model.Profile{
		ID:        r.ID,
		CreatorID: r.CreatorID,
		IDNo:      r.IDNo,
		Name:      r.Name,
		Phone:     r.Phone,
		Address:   r.Address,
		ImageID:   r.ImageID,
		CreatedAt: r.CreatedAt,
	}
}

// patchColumns はProfilePatchを更新対象カラムのmapに変換する。
// nilのフィールドは含めない。
func patchColumns(patch model.ProfilePatch) map[string]interface{} {
	cols := make(map[string]interface{}, 3)
	if patch.Phone != nil {
		cols["phone"] = *patch.Phone
	}
	if patch.Address != nil {
		cols["address"] = *patch.Address
	}
	if patch.ImageID != nil {
		cols["image_id"] = *patch.ImageID
	}
	return cols
}
