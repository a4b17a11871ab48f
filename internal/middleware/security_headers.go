package middleware

import "net/http"

// apiResponseHeaders はJSON APIの全レスポンスに付与するヘッダー。
// プロフィールにはアカウントの個人情報が含まれるため、共有キャッシュにも残さない。
var apiResponseHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
	"Pragma":                  "no-cache",
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range apiResponseHeaders {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
