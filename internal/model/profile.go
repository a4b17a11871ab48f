package model

import "time"

// Profile はアカウントが登録した利用者情報（身分証番号・氏名・連絡先）を表す。
// 作成したアカウント以外からは参照・更新・削除できない。
type Profile struct {
	ID        string
	CreatorID string
	IDNo      string
	Name      string
	Phone     string
	Address   string
	ImageID   *string
	CreatedAt time.Time
}

// ProfileInput はProfile作成時の入力値。
type ProfileInput struct {
	IDNo    string
	Name    string
	Phone   string
	Address string
	ImageID *string
}

// ProfilePatch はProfileの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfilePatch struct {
	Phone   *string
	Address *string
	ImageID *string
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p ProfilePatch) IsEmpty() bool {
	return p.Phone == nil && p.Address == nil && p.ImageID == nil
}
