package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultWechatAPIURL はWeChatのjscode2sessionエンドポイント。
const DefaultWechatAPIURL = "https://api.weixin.qq.com/sns/jscode2session"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`

	// WeChat
	WechatAppID     string        `env:"WECHAT_APP_ID"`
	WechatAppSecret string        `env:"WECHAT_APP_SECRET"`
	WechatAPIURL    string        `env:"WECHAT_API_URL" env-default:"https://api.weixin.qq.com/sns/jscode2session"`
	WechatTimeout   time.Duration `env:"WECHAT_TIMEOUT" env-default:"5s"`

	// Session
	SessionStaleAfter time.Duration `env:"SESSION_STALE_AFTER" env-default:"6h"`
	SessionRetention  time.Duration `env:"SESSION_RETENTION" env-default:"720h"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" env-default:"24h"`

	// Worker
	WorkerMetricsPort string `env:"WORKER_METRICS_PORT" env-default:"9091"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" env-default:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" env-default:"20"`

	// Profile
	ProfileMaxPageSize int `env:"PROFILE_MAX_PAGE_SIZE" env-default:"100"`

	// Server
	ServerPort string `env:"SERVER_PORT" env-default:"8080"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	// Required fields
	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.WechatAppID == "" {
		missing = append(missing, "WECHAT_APP_ID")
	}
	if cfg.WechatAppSecret == "" {
		missing = append(missing, "WECHAT_APP_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.WechatAPIURL == "" {
		cfg.WechatAPIURL = DefaultWechatAPIURL
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.WorkerMetricsPort == "" {
		cfg.WorkerMetricsPort = "9091"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の範囲を検証する。
func (c *Config) validate() error {
	if c.SessionStaleAfter <= 0 {
		return fmt.Errorf("SESSION_STALE_AFTER must be positive: %s", c.SessionStaleAfter)
	}
	// 認証に使えるセッションをクリーンアップで消さない
	if c.SessionRetention < c.SessionStaleAfter {
		return fmt.Errorf("SESSION_RETENTION must not be shorter than SESSION_STALE_AFTER: retention=%s stale_after=%s",
			c.SessionRetention, c.SessionStaleAfter)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive: %s", c.CleanupInterval)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitLogin <= 0 {
		return fmt.Errorf("rate limits must be positive: general=%d login=%d", c.RateLimitGeneral, c.RateLimitLogin)
	}
	if c.ProfileMaxPageSize <= 0 {
		return fmt.Errorf("PROFILE_MAX_PAGE_SIZE must be positive: %d", c.ProfileMaxPageSize)
	}
	return nil
}
