package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, wechat, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeInvalidPagination      = "INVALID_PAGINATION"
	ErrCodeInvalidProfile         = "INVALID_PROFILE"
	ErrCodeProfileNotFound        = "PROFILE_NOT_FOUND"
	ErrCodeWechatSystemBusy       = "WECHAT_SYSTEM_BUSY"
	ErrCodeWechatInvalidCode      = "WECHAT_INVALID_CODE"
	ErrCodeWechatRiskyUser        = "WECHAT_RISKY_USER"
	ErrCodeWechatRateLimited      = "WECHAT_RATE_LIMITED"
	ErrCodeWechatUnsupportedError = "WECHAT_UNSUPPORTED_ERROR"
	ErrCodeWechatUnavailable      = "WECHAT_UNAVAILABLE"
	ErrCodeBadGateway             = "BAD_GATEWAY"
	ErrCodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// トークン欠落・形式不正・未登録・期限切れを区別しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエスト形式の不正を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewInvalidPaginationError はページング指定の不正を表すエラーを生成する。
func NewInvalidPaginationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPagination,
		Message:  fmt.Sprintf("ページング指定が不正です: %s", reason),
		Category: "validation",
		Action:   "start と count に0以上の整数を指定してください。",
	}
}

// NewInvalidProfileError は利用者情報の入力値不正を表すエラーを生成する。
func NewInvalidProfileError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("%s が不正です: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewProfileNotFoundError は利用者情報が見つからない場合のエラーを生成する。
// 他アカウントの情報を指定した場合も同じエラーを返す。
func NewProfileNotFoundError(profileID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定された利用者情報が見つかりません: %s", profileID),
		Category: "profile",
		Action:   "利用者情報IDを確認してください。",
	}
}

// NewWechatSystemBusyError はWeChat側がビジー（errcode -1）の場合のエラーを生成する。
func NewWechatSystemBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeWechatSystemBusy,
		Message:  "WeChatサーバーが混雑しています。",
		Category: "wechat",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewWechatInvalidCodeError はログインコードが無効（errcode 40029）の場合のエラーを生成する。
func NewWechatInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeWechatInvalidCode,
		Message:  "ログインコードが無効です。",
		Category: "wechat",
		Action:   "wx.login で新しいコードを取得してください。",
	}
}

// NewWechatRiskyUserError は高リスクユーザーとして拒否された（errcode 40226）場合のエラーを生成する。
func NewWechatRiskyUserError() *APIError {
	return &APIError{
		Code:     ErrCodeWechatRiskyUser,
		Message:  "このユーザーはログインを制限されています。",
		Category: "wechat",
		Action:   "WeChatアカウントの状態を確認してください。",
	}
}

// NewWechatRateLimitedError はWeChat側の呼び出し頻度制限（errcode 45011）のエラーを生成する。
func NewWechatRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeWechatRateLimited,
		Message:  "ログイン試行が多すぎます。",
		Category: "wechat",
		Action:   "1分ほど待ってから再度ログインしてください。",
	}
}

// NewWechatUnsupportedError は未対応のerrcodeを受け取った場合のエラーを生成する。
func NewWechatUnsupportedError(errcode int) *APIError {
	return &APIError{
		Code:     ErrCodeWechatUnsupportedError,
		Message:  fmt.Sprintf("WeChatから未対応のエラーが返されました: %d", errcode),
		Category: "wechat",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewWechatUnavailableError はWeChat APIへの接続自体に失敗した場合のエラーを生成する。
func NewWechatUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeWechatUnavailable,
		Message:  "WeChatサーバーに接続できませんでした。",
		Category: "wechat",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBadGatewayError は上流レスポンスの不正やログイン処理中の保存失敗を表すエラーを生成する。
func NewBadGatewayError() *APIError {
	return &APIError{
		Code:     ErrCodeBadGateway,
		Message:  "ログイン処理を完了できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitExceededError はサービス側のレート制限を超えた場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
