// Package wechat はWeChatミニプログラムのjscode2session APIクライアントを提供する。
package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultEndpoint はjscode2sessionのエンドポイント。
	DefaultEndpoint = "https://api.weixin.qq.com/sns/jscode2session"
	defaultTimeout  = 5 * time.Second
	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 64 * 1024
)

// WeChatが返す既知のerrcode。
const (
	ErrCodeSystemBusy  = -1
	ErrCodeInvalidCode = 40029
	ErrCodeRiskyUser   = 40226
	ErrCodeRateLimited = 45011
)

var (
	// ErrUnavailable はWeChat APIへの接続失敗、または2xx以外のHTTPステータスを表す。
	ErrUnavailable = errors.New("wechat api unavailable")
	// ErrMalformedResponse はレスポンスがJSONとして解釈できないことを表す。
	ErrMalformedResponse = errors.New("wechat api returned malformed response")
	// ErrMissingOpenID はerrcode 0にもかかわらずopenidが空であることを表す。
	ErrMissingOpenID = errors.New("wechat api returned empty openid")
)

// APIError はWeChatが非0のerrcodeを返したことを表す。
type APIError struct {
	ErrCode int
	ErrMsg  string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("wechat errcode %d: %s", e.ErrCode, e.ErrMsg)
}

// Config はクライアントの設定。
type Config struct {
	AppID     string
	AppSecret string
	// Endpoint はテスト用に差し替え可能。空の場合はDefaultEndpoint。
	Endpoint string
	Timeout  time.Duration
}

// Session はjscode2sessionの成功レスポンス。
type Session struct {
	OpenID     string
	SessionKey string
	UnionID    string
}

// code2SessionResponse はjscode2sessionのレスポンスボディ。
type code2SessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// Client はWeChat APIのクライアント。リトライは行わない。
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient はClientを生成する。loggerがnilの場合はslog.Default()を使う。
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Code2Session はログインコードをopenidとsession_keyに交換する。
// 非0のerrcodeは*APIErrorとして返す。
func (c *Client) Code2Session(ctx context.Context, code string) (*Session, error) {
	// 1. リクエストURL構築
	reqURL, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("appid", c.config.AppID)
	q.Set("secret", c.config.AppSecret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 2. HTTPリクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("WeChat APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("WeChat APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// 3. レスポンスのデコード
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var result code2SessionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Warn("WeChat APIのレスポンスをデコードできませんでした",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// 4. errcode判定
	if result.ErrCode != 0 {
		return nil, &APIError{ErrCode: result.ErrCode, ErrMsg: result.ErrMsg}
	}
	if result.OpenID == "" {
		return nil, ErrMissingOpenID
	}

	return &Session{
		OpenID:     result.OpenID,
		SessionKey: result.SessionKey,
		UnionID:    result.UnionID,
	}, nil
}
