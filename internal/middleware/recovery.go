package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一フォーマットの500レスポンスを返すミドルウェアを生成する。
// ベアラー認証済みのリクエストであれば、どのアカウントの操作中だったかもログに残す。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				// ベアラーミドルウェアは内側で動くため、ロギングミドルウェアのaccountSlotを参照する
				if slot, ok := r.Context().Value(accountSlotContextKey).(*accountSlot); ok && slot.accountID != "" {
					attrs = append(attrs,
						slog.String("account_id", slot.accountID),
						slog.String("role", string(slot.role)),
					)
				}
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))

				slog.Error("panic recovered", attrs...)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
