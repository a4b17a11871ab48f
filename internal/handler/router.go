package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/wxprofile/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger          *slog.Logger
	Authenticator   middleware.Authenticator
	RateLimiter     *middleware.RateLimiter
	MetricsRecorder middleware.HTTPMetricsRecorder

	// ログイン
	LoginService LoginServiceInterface

	// 利用者情報
	ProfileService ProfileServiceInterface

	// 運用エンドポイント
	HealthPinger   Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Metrics → Recovery → SecurityHeaders → (ルート別) Bearer → RateLimit(General)
//
// ログインルートはIP単位のレート制限のみを適用し、ベアラー認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// リバースプロキシ配下でログイン制限のキーを実クライアントIPにする
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.MetricsRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	}
	// パニックは500としてログとメトリクスに残す
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	loginHandler := NewLoginHandler(deps.LoginService)
	profileHandler := NewProfileHandler(deps.ProfileService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthPinger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// POST /wechat-login - ログイン専用レート制限を追加
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/wechat-login", loginHandler.Login)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Bearer → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/user-info", func(r chi.Router) {
			r.Get("/query", profileHandler.List)
			r.Post("/add", profileHandler.Create)
			r.Put("/set", profileHandler.Update)
			r.Delete("/delete", profileHandler.Delete)
		})
	})

	return r
}

// NewWorkerRouter はワーカープロセス用の運用エンドポイントを構成したchi.Routerを返す。
// ワーカーはAPIを公開しないため、/health と /metrics のみを提供する。
func NewWorkerRouter(metricsHandler http.Handler, pinger Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())

	r.Get("/health", NewHealthHandler(pinger))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}
