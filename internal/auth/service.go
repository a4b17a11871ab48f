// Package auth はWeChatログインによるトークン発行とベアラートークン認証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wxprofile/internal/model"
	"github.com/hitoshi/wxprofile/internal/repository"
	"github.com/hitoshi/wxprofile/internal/wechat"
)

// DefaultStaleAfter はセッションの有効期間のデフォルト値。
const DefaultStaleAfter = 6 * time.Hour

// ログイン結果のラベル。
const (
	LoginResultNewAccount      = "new_account"
	LoginResultExistingAccount = "existing_account"
	LoginResultFailed          = "failed"
)

// WechatClient はWeChatのコード交換のインターフェース。
type WechatClient interface {
	Code2Session(ctx context.Context, code string) (*wechat.Session, error)
}

// LoginRecorder はログイン関連のメトリクスを記録するインターフェース。
type LoginRecorder interface {
	RecordLogin(result string)
	RecordUpstreamError(errcode int)
	RecordTokenRotation()
}

type noopRecorder struct{}

func (noopRecorder) RecordLogin(string)      {}
func (noopRecorder) RecordUpstreamError(int) {}
func (noopRecorder) RecordTokenRotation()    {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// StaleAfter は最終ログインからこの期間を超えたセッションを期限切れとする。
	// 期限切れのセッションは認証に使えず、次回ログイン時にトークンを再発行する。
	StaleAfter time.Duration
}

// Service はログインと認証に関するビジネスロジックを提供する。
type Service struct {
	wechat      WechatClient
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	recorder    LoginRecorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	wechatClient WechatClient,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	recorder LoginRecorder,
	config ServiceConfig,
) *Service {
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		wechat:      wechatClient,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// Login はWeChatのログインコードを検証し、ベアラートークンを持つセッションを返す。
// 初回ログインではアカウントとセッションを作成する。
// 2回目以降は最終ログイン日時とsession_keyを更新し、期限切れの場合のみトークンを再発行する。
func (s *Service) Login(ctx context.Context, code string) (*model.Session, error) {
	if code == "" {
		return nil, model.NewInvalidRequestError("wechat_code は必須です")
	}

	// 1. ログインコードをopenidとsession_keyに交換
	ws, err := s.wechat.Code2Session(ctx, code)
	if err != nil {
		s.recorder.RecordLogin(LoginResultFailed)
		return nil, s.classifyWechatError(err)
	}

	// 2. アカウントを取得、なければ作成
	account, created, err := s.ensureAccount(ctx, ws.OpenID)
	if err != nil {
		s.recorder.RecordLogin(LoginResultFailed)
		slog.Error("failed to ensure account", slog.String("error", err.Error()))
		return nil, model.NewBadGatewayError()
	}

	// 3. セッションを作成または更新
	session, err := s.issueSession(ctx, account.ID, ws.SessionKey)
	if err != nil {
		s.recorder.RecordLogin(LoginResultFailed)
		slog.Error("failed to issue session",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewBadGatewayError()
	}

	if created {
		s.recorder.RecordLogin(LoginResultNewAccount)
		slog.Info("new account created", slog.String("account_id", account.ID))
	} else {
		s.recorder.RecordLogin(LoginResultExistingAccount)
		slog.Info("existing account logged in", slog.String("account_id", account.ID))
	}

	return session, nil
}

// Authenticate はベアラートークンからアカウントを解決する。
// 形式不正・未登録・期限切れは全て同じ認証エラーになる。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Account, error) {
	parsed, err := uuid.Parse(token)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByToken(ctx, parsed.String())
	if err != nil {
		slog.Error("failed to find session by token", slog.String("error", err.Error()))
		return nil, model.NewInternalError()
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}
	if session.IsStale(s.now(), s.config.StaleAfter) {
		return nil, model.NewUnauthorizedError()
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		slog.Error("failed to find account",
			slog.String("account_id", session.AccountID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError()
	}
	if account == nil {
		return nil, model.NewUnauthorizedError()
	}

	return account, nil
}

// ensureAccount はopenidに対応するアカウントを返す。存在しなければroleをnormalとして作成する。
// 同時ログインで作成が競合した場合は再取得する。
func (s *Service) ensureAccount(ctx context.Context, openID string) (*model.Account, bool, error) {
	account, err := s.accountRepo.FindByWechatID(ctx, openID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find account: %w", err)
	}
	if account != nil {
		return account, false, nil
	}

	account = &model.Account{
		ID:        uuid.New().String(),
		WechatID:  openID,
		Role:      model.RoleNormal,
		CreatedAt: s.now(),
	}
	err = s.accountRepo.Create(ctx, account)
	if err == nil {
		return account, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	account, err = s.accountRepo.FindByWechatID(ctx, openID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find account after conflict: %w", err)
	}
	if account == nil {
		return nil, false, fmt.Errorf("account vanished after conflict: %s", openID)
	}
	return account, false, nil
}

// issueSession はアカウントのセッションを作成または更新する。
func (s *Service) issueSession(ctx context.Context, accountID, sessionKey string) (*model.Session, error) {
	now := s.now()

	session, err := s.sessionRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if session == nil {
		session = newSession(accountID, sessionKey, now)
		err = s.sessionRepo.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		session, err = s.sessionRepo.FindByAccountID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to find session after conflict: %w", err)
		}
		if session == nil {
			return nil, fmt.Errorf("session vanished after conflict: %s", accountID)
		}
	}

	// 期限切れの場合のみトークンを再発行する
	if session.IsStale(now, s.config.StaleAfter) {
		session.Token = uuid.New().String()
		s.recorder.RecordTokenRotation()
	}
	session.LastLogin = now
	session.SessionKey = sessionKey

	err = s.sessionRepo.Update(ctx, session)
	if errors.Is(err, repository.ErrNotFound) {
		// 読み取り後にクリーンアップで削除されたため、新しいトークンで作り直す
		slog.Warn("session purged during login, recreating", slog.String("account_id", accountID))
		session = newSession(accountID, sessionKey, now)
		if err := s.sessionRepo.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to recreate purged session: %w", err)
		}
		s.recorder.RecordTokenRotation()
		return session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// newSession は新しいトークンを持つセッションを生成する。
func newSession(accountID, sessionKey string, now time.Time) *model.Session {
	return &model.Session{
		AccountID:  accountID,
		LastLogin:  now,
		SessionKey: sessionKey,
		Token:      uuid.New().String(),
	}
}

// classifyWechatError はWeChatクライアントのエラーをAPIErrorに変換する。
func (s *Service) classifyWechatError(err error) *model.APIError {
	var apiErr *wechat.APIError
	if errors.As(err, &apiErr) {
		s.recorder.RecordUpstreamError(apiErr.ErrCode)
		slog.Warn("wechat rejected login code",
			slog.Int("errcode", apiErr.ErrCode),
			slog.String("errmsg", apiErr.ErrMsg),
		)
		switch apiErr.ErrCode {
		case wechat.ErrCodeSystemBusy:
			return model.NewWechatSystemBusyError()
		case wechat.ErrCodeInvalidCode:
			return model.NewWechatInvalidCodeError()
		case wechat.ErrCodeRiskyUser:
			return model.NewWechatRiskyUserError()
		case wechat.ErrCodeRateLimited:
			return model.NewWechatRateLimitedError()
		default:
			return model.NewWechatUnsupportedError(apiErr.ErrCode)
		}
	}

	slog.Error("wechat code exchange failed", slog.String("error", err.Error()))
	if errors.Is(err, wechat.ErrMalformedResponse) || errors.Is(err, wechat.ErrMissingOpenID) {
		return model.NewBadGatewayError()
	}
	return model.NewWechatUnavailableError()
}
