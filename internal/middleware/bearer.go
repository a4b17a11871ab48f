// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/wxprofile/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// accountSlotContextKey はロギングミドルウェアが用意するaccountSlotのキー。
	accountSlotContextKey = contextKey("account_slot")
	// accountIDContextKey はリクエストコンテキストにアカウントIDを格納するためのキー。
	accountIDContextKey = contextKey("account_id")
	// roleContextKey はリクエストコンテキストにアカウントの権限区分を格納するためのキー。
	roleContextKey = contextKey("role")
)

// accountSlot は内側のミドルウェアで解決されたアカウントを外側のミドルウェアに渡す。
type accountSlot struct {
	accountID string
	role      model.Role
}

func withAccountSlot(ctx context.Context, slot *accountSlot) context.Context {
	return context.WithValue(ctx, accountSlotContextKey, slot)
}

// Authenticator はベアラートークンからアカウントを解決するインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Account, error)
}

// NewBearerMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 認証済みアカウントIDと権限区分をリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダー欠落・形式不正・無効なトークンには401を返す。
func NewBearerMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				WriteUnauthorized(w)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

			// 2. トークンを検証してアカウントを解決
			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthorized {
					WriteUnauthorized(w)
					return
				}
				WriteInternalServerError(w)
				return
			}

			// 3. 認証済みアカウントをコンテキストに注入
			ctx := ContextWithAccount(r.Context(), account.ID, account.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// ベアラーミドルウェアを通過したリクエストでのみ有効。
func AccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || accountID == "" {
		return "", fmt.Errorf("account ID not found in context")
	}
	return accountID, nil
}

// RoleFromContext はリクエストコンテキストからアカウントの権限区分を取得する。
func RoleFromContext(ctx context.Context) (model.Role, bool) {
	role, ok := ctx.Value(roleContextKey).(model.Role)
	return role, ok
}

// ContextWithAccount はコンテキストにアカウントIDと権限区分を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccount(ctx context.Context, accountID string, role model.Role) context.Context {
	if slot, ok := ctx.Value(accountSlotContextKey).(*accountSlot); ok {
		slot.accountID = accountID
		slot.role = role
	}
	ctx = context.WithValue(ctx, accountIDContextKey, accountID)
	return context.WithValue(ctx, roleContextKey, role)
}
