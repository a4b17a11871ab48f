package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/hitoshi/wxprofile/internal/auth"
	"github.com/hitoshi/wxprofile/internal/config"
	"github.com/hitoshi/wxprofile/internal/database"
	"github.com/hitoshi/wxprofile/internal/handler"
	"github.com/hitoshi/wxprofile/internal/logger"
	"github.com/hitoshi/wxprofile/internal/metrics"
	"github.com/hitoshi/wxprofile/internal/middleware"
	"github.com/hitoshi/wxprofile/internal/profile"
	"github.com/hitoshi/wxprofile/internal/repository"
	"github.com/hitoshi/wxprofile/internal/security"
	"github.com/hitoshi/wxprofile/internal/wechat"
	"github.com/hitoshi/wxprofile/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		WriteUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandMigrateDown:
		return runMigrateDown(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はlib/pqの接続を開いてプールを設定し、その上にgormを構築する。
// 返された*sql.DBのクローズは呼び出し元の責任。
func openDatabase(cfg *config.Config) (*sql.DB, *gorm.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	database.ConfigurePool(db, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	gdb, err := database.OpenGorm(db, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return db, gdb, nil
}

// newMetrics はアプリケーション専用のレジストリとコレクターを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, gdb, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewGormAccountRepo(gdb)
	sessionRepo := repository.NewGormSessionRepo(gdb)
	profileRepo := repository.NewGormProfileRepo(gdb)

	// 3. メトリクスの初期化
	reg, collector := newMetrics()

	// 4. ドメインサービスの初期化
	wechatClient := wechat.NewClient(wechat.Config{
		AppID:     cfg.WechatAppID,
		AppSecret: cfg.WechatAppSecret,
		Endpoint:  cfg.WechatAPIURL,
		Timeout:   cfg.WechatTimeout,
	}, slog.Default())

	authService := auth.NewService(
		wechatClient, accountRepo, sessionRepo, collector,
		auth.ServiceConfig{StaleAfter: cfg.SessionStaleAfter},
	)
	profileService := profile.NewService(
		profileRepo, security.NewTextSanitizer(),
		profile.ServiceConfig{MaxPageSize: cfg.ProfileMaxPageSize},
	)

	// 5. ルーターの構築（req/min単位の設定をreq/secに変換する）
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:          slog.Default(),
		Authenticator:   authService,
		RateLimiter:     rateLimiter,
		MetricsRecorder: collector,
		LoginService:    authService,
		ProfileService:  profileService,
		HealthPinger:    db,
		MetricsHandler:  metrics.Handler(reg),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、古いセッションのクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, gdb, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	reg, collector := newMetrics()
	cleanupJob := cleanup.NewCleanupJob(repository.NewGormSessionRepo(gdb), collector, slog.Default())
	cleanupJob.Retention = cfg.SessionRetention

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// 3. 運用エンドポイント（/metrics, /health）の起動
	metricsServer := newWorkerMetricsServer(cfg.WorkerMetricsPort, reg, db)
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("session_retention", cfg.SessionRetention),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	jobErr := cleanupJob.Start(ctx, cfg.CleanupInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if jobErr != nil {
		return fmt.Errorf("cleanup job failed to start: %w", jobErr)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// newWorkerMetricsServer はワーカーのメトリクスとヘルスチェックを公開するHTTPサーバーを生成する。
func newWorkerMetricsServer(port string, reg *prometheus.Registry, pinger handler.Pinger) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler.NewWorkerRouter(metrics.Handler(reg), pinger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runMigrateDown は直近のマイグレーションを1つロールバックする。
func runMigrateDown(cfg *config.Config) error {
	slog.Info("rolling back latest database migration",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration rollback failed: %w", err)
	}

	slog.Info("database migration rolled back successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
