package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/wxprofile/internal/model"
	"github.com/hitoshi/wxprofile/internal/repository"
	"github.com/hitoshi/wxprofile/internal/wechat"
)

// --- モック定義 ---

type mockWechatClient struct {
	code2SessionFn func(ctx context.Context, code string) (*wechat.Session, error)
	calls          int
}

func (m *mockWechatClient) Code2Session(ctx context.Context, code string) (*wechat.Session, error) {
	m.calls++
	if m.code2SessionFn != nil {
		return m.code2SessionFn(ctx, code)
	}
	return &wechat.Session{OpenID: "o-default", SessionKey: "sk-default"}, nil
}

type mockAccountRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.Account, error)
	findByWechatIDFn func(ctx context.Context, wechatID string) (*model.Account, error)
	createFn         func(ctx context.Context, account *model.Account) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByWechatID(ctx context.Context, wechatID string) (*model.Account, error) {
	if m.findByWechatIDFn != nil {
		return m.findByWechatIDFn(ctx, wechatID)
	}
	return nil, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if m.createFn != nil {
		return m.createFn(ctx, account)
	}
	return nil
}

type mockSessionRepo struct {
	findByAccountIDFn func(ctx context.Context, accountID string) (*model.Session, error)
	findByTokenFn     func(ctx context.Context, token string) (*model.Session, error)
	createFn          func(ctx context.Context, session *model.Session) error
	updateFn          func(ctx context.Context, session *model.Session) error
}

func (m *mockSessionRepo) FindByAccountID(ctx context.Context, accountID string) (*model.Session, error) {
	if m.findByAccountIDFn != nil {
		return m.findByAccountIDFn(ctx, accountID)
	}
	return nil, nil
}

func (m *mockSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *model.Session) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) DeleteIdleBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockRecorder struct {
	logins        []string
	upstreamCodes []int
	rotations     int
}

func (m *mockRecorder) RecordLogin(result string)       { m.logins = append(m.logins, result) }
func (m *mockRecorder) RecordUpstreamError(errcode int) { m.upstreamCodes = append(m.upstreamCodes, errcode) }
func (m *mockRecorder) RecordTokenRotation()            { m.rotations++ }

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ WechatClient = (*mockWechatClient)(nil)
var _ LoginRecorder = (*mockRecorder)(nil)

// memStore はアカウントとセッションを保持する簡易ストア。
// 作成回数を数えて「1回だけ作成される」ことを検証するために使う。
type memStore struct {
	accounts       map[string]*model.Account // wechat_id -> account
	sessions       map[string]*model.Session // account_id -> session
	accountCreates int
	sessionCreates int
	sessionUpdates int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*model.Account),
		sessions: make(map[string]*model.Session),
	}
}

func (s *memStore) accountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Account, error) {
			for _, a := range s.accounts {
				if a.ID == id {
					cp := *a
					return &cp, nil
				}
			}
			return nil, nil
		},
		findByWechatIDFn: func(_ context.Context, wechatID string) (*model.Account, error) {
			if a, ok := s.accounts[wechatID]; ok {
				cp := *a
				return &cp, nil
			}
			return nil, nil
		},
		createFn: func(_ context.Context, account *model.Account) error {
			if _, ok := s.accounts[account.WechatID]; ok {
				return repository.ErrDuplicate
			}
			cp := *account
			s.accounts[account.WechatID] = &cp
			s.accountCreates++
			return nil
		},
	}
}

func (s *memStore) sessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		findByAccountIDFn: func(_ context.Context, accountID string) (*model.Session, error) {
			if sess, ok := s.sessions[accountID]; ok {
				cp := *sess
				return &cp, nil
			}
			return nil, nil
		},
		findByTokenFn: func(_ context.Context, token string) (*model.Session, error) {
			for _, sess := range s.sessions {
				if sess.Token == token {
					cp := *sess
					return &cp, nil
				}
			}
			return nil, nil
		},
		createFn: func(_ context.Context, session *model.Session) error {
			if _, ok := s.sessions[session.AccountID]; ok {
				return repository.ErrDuplicate
			}
			s.sessionCreates++
			session.ID = int64(s.sessionCreates)
			cp := *session
			s.sessions[session.AccountID] = &cp
			return nil
		},
		updateFn: func(_ context.Context, session *model.Session) error {
			if _, ok := s.sessions[session.AccountID]; !ok {
				return repository.ErrNotFound
			}
			cp := *session
			s.sessions[session.AccountID] = &cp
			s.sessionUpdates++
			return nil
		},
	}
}

func newTestService(wc WechatClient, store *memStore, rec LoginRecorder, now time.Time) *Service {
	svc := NewService(wc, store.accountRepo(), store.sessionRepo(), rec, ServiceConfig{StaleAfter: 6 * time.Hour})
	svc.now = func() time.Time { return now }
	return svc
}

func wechatReturning(openID, sessionKey string) *mockWechatClient {
	return &mockWechatClient{
		code2SessionFn: func(_ context.Context, _ string) (*wechat.Session, error) {
			return &wechat.Session{OpenID: openID, SessionKey: sessionKey}, nil
		},
	}
}

func assertAPIErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("error code = %q, want %q", apiErr.Code, wantCode)
	}
}

// --- Login ---

func TestLogin_FirstLogin_CreatesOneAccountAndOneSession(t *testing.T) {
	store := newMemStore()
	rec := &mockRecorder{}
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(wechatReturning("o-new", "sk-1"), store, rec, now)

	session, err := svc.Login(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.accountCreates != 1 {
		t.Errorf("accountCreates = %d, want 1", store.accountCreates)
	}
	if store.sessionCreates != 1 {
		t.Errorf("sessionCreates = %d, want 1", store.sessionCreates)
	}
	if session.Token == "" {
		t.Error("expected non-empty token")
	}
	if session.SessionKey != "sk-1" {
		t.Errorf("SessionKey = %q, want %q", session.SessionKey, "sk-1")
	}
	if !session.LastLogin.Equal(now) {
		t.Errorf("LastLogin = %v, want %v", session.LastLogin, now)
	}

	account := store.accounts["o-new"]
	if account == nil || account.Role != model.RoleNormal {
		t.Errorf("account = %+v, want role normal", account)
	}
	if len(rec.logins) != 1 || rec.logins[0] != LoginResultNewAccount {
		t.Errorf("recorded logins = %v", rec.logins)
	}
}

func TestLogin_SecondLogin_ReusesAccountAndKeepsFreshToken(t *testing.T) {
	store := newMemStore()
	rec := &mockRecorder{}
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(wechatReturning("o-same", "sk-1"), store, rec, now)

	first, err := svc.Login(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	// 1時間後に再ログイン（期限内）
	svc.now = func() time.Time { return now.Add(time.Hour) }
	svc.wechat = wechatReturning("o-same", "sk-2")

	second, err := svc.Login(context.Background(), "code-2")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if store.accountCreates != 1 {
		t.Errorf("accountCreates = %d, want 1", store.accountCreates)
	}
	if store.sessionCreates != 1 {
		t.Errorf("sessionCreates = %d, want 1", store.sessionCreates)
	}
	if second.Token != first.Token {
		t.Errorf("token rotated within the fresh window: %q -> %q", first.Token, second.Token)
	}
	if second.SessionKey != "sk-2" {
		t.Errorf("SessionKey = %q, want %q", second.SessionKey, "sk-2")
	}
	if !second.LastLogin.Equal(now.Add(time.Hour)) {
		t.Errorf("LastLogin = %v, want %v", second.LastLogin, now.Add(time.Hour))
	}
	if rec.rotations != 0 {
		t.Errorf("rotations = %d, want 0", rec.rotations)
	}
}

func TestLogin_StaleSession_RotatesToken(t *testing.T) {
	store := newMemStore()
	rec := &mockRecorder{}
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(wechatReturning("o-stale", "sk-1"), store, rec, now)

	first, err := svc.Login(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	svc.now = func() time.Time { return now.Add(7 * time.Hour) }
	second, err := svc.Login(context.Background(), "code-2")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if second.Token == first.Token {
		t.Error("expected token rotation for stale session")
	}
	if rec.rotations != 1 {
		t.Errorf("rotations = %d, want 1", rec.rotations)
	}

	// 旧トークンは使えず、新トークンで認証できる
	if _, err := svc.Authenticate(context.Background(), first.Token); err == nil {
		t.Error("old token should be rejected after rotation")
	}
	if _, err := svc.Authenticate(context.Background(), second.Token); err != nil {
		t.Errorf("new token should authenticate: %v", err)
	}
}

func TestLogin_SessionPurgedBeforeUpdate_IssuesStoredToken(t *testing.T) {
	store := newMemStore()
	rec := &mockRecorder{}
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(wechatReturning("o-purged", "sk-1"), store, rec, now)

	first, err := svc.Login(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	// 読み取り直後にクリーンアップが同じセッションを削除する
	sessions := store.sessionRepo()
	findByAccountID := sessions.findByAccountIDFn
	sessions.findByAccountIDFn = func(ctx context.Context, accountID string) (*model.Session, error) {
		found, err := findByAccountID(ctx, accountID)
		delete(store.sessions, accountID)
		return found, err
	}
	svc.sessionRepo = sessions
	svc.now = func() time.Time { return now.Add(30 * 24 * time.Hour) }

	second, err := svc.Login(context.Background(), "code-2")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if second.Token == first.Token {
		t.Error("expected a new token after the session was purged")
	}
	if store.sessionCreates != 2 {
		t.Errorf("session creates = %d, want 2", store.sessionCreates)
	}

	// 返したトークンは保存済みで、そのまま認証に使える
	svc.sessionRepo = store.sessionRepo()
	if _, err := svc.Authenticate(context.Background(), second.Token); err != nil {
		t.Errorf("returned token should authenticate: %v", err)
	}
}

func TestLogin_EmptyCode_DoesNotCallUpstream(t *testing.T) {
	wc := &mockWechatClient{}
	svc := newTestService(wc, newMemStore(), nil, time.Now())

	_, err := svc.Login(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
	if wc.calls != 0 {
		t.Errorf("upstream calls = %d, want 0", wc.calls)
	}
}

func TestLogin_UpstreamErrors_MapToAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"system busy", &wechat.APIError{ErrCode: -1}, model.ErrCodeWechatSystemBusy},
		{"invalid code", &wechat.APIError{ErrCode: 40029}, model.ErrCodeWechatInvalidCode},
		{"risky user", &wechat.APIError{ErrCode: 40226}, model.ErrCodeWechatRiskyUser},
		{"rate limited", &wechat.APIError{ErrCode: 45011}, model.ErrCodeWechatRateLimited},
		{"unrecognized", &wechat.APIError{ErrCode: 40163}, model.ErrCodeWechatUnsupportedError},
		{"malformed", wechat.ErrMalformedResponse, model.ErrCodeBadGateway},
		{"missing openid", wechat.ErrMissingOpenID, model.ErrCodeBadGateway},
		{"unavailable", wechat.ErrUnavailable, model.ErrCodeWechatUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			wc := &mockWechatClient{
				code2SessionFn: func(_ context.Context, _ string) (*wechat.Session, error) {
					return nil, tt.err
				},
			}
			svc := newTestService(wc, store, nil, time.Now())

			_, err := svc.Login(context.Background(), "code")
			assertAPIErrorCode(t, err, tt.wantCode)

			if store.accountCreates != 0 || store.sessionCreates != 0 {
				t.Error("no local state should change on upstream error")
			}
		})
	}
}

func TestLogin_UpstreamErrcode_IsRecorded(t *testing.T) {
	rec := &mockRecorder{}
	wc := &mockWechatClient{
		code2SessionFn: func(_ context.Context, _ string) (*wechat.Session, error) {
			return nil, &wechat.APIError{ErrCode: 45011, ErrMsg: "freq limit"}
		},
	}
	svc := newTestService(wc, newMemStore(), rec, time.Now())

	_, _ = svc.Login(context.Background(), "code")

	if len(rec.upstreamCodes) != 1 || rec.upstreamCodes[0] != 45011 {
		t.Errorf("upstreamCodes = %v, want [45011]", rec.upstreamCodes)
	}
	if len(rec.logins) != 1 || rec.logins[0] != LoginResultFailed {
		t.Errorf("logins = %v, want [%s]", rec.logins, LoginResultFailed)
	}
}

func TestLogin_AccountStorageError_ReturnsBadGateway(t *testing.T) {
	accounts := &mockAccountRepo{
		findByWechatIDFn: func(_ context.Context, _ string) (*model.Account, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewService(wechatReturning("o-1", "sk"), accounts, &mockSessionRepo{}, nil, ServiceConfig{})

	_, err := svc.Login(context.Background(), "code")
	assertAPIErrorCode(t, err, model.ErrCodeBadGateway)
}

func TestLogin_SessionStorageError_ReturnsBadGateway(t *testing.T) {
	sessions := &mockSessionRepo{
		createFn: func(_ context.Context, _ *model.Session) error {
			return errors.New("disk full")
		},
	}
	svc := NewService(wechatReturning("o-1", "sk"), &mockAccountRepo{}, sessions, nil, ServiceConfig{})

	_, err := svc.Login(context.Background(), "code")
	assertAPIErrorCode(t, err, model.ErrCodeBadGateway)
}

func TestLogin_ConcurrentAccountCreate_RereadsExisting(t *testing.T) {
	existing := &model.Account{ID: "acc-existing", WechatID: "o-race", Role: model.RoleNormal}
	findCalls := 0
	accounts := &mockAccountRepo{
		findByWechatIDFn: func(_ context.Context, _ string) (*model.Account, error) {
			findCalls++
			if findCalls == 1 {
				return nil, nil
			}
			return existing, nil
		},
		createFn: func(_ context.Context, _ *model.Account) error {
			return repository.ErrDuplicate
		},
	}
	var createdFor string
	sessions := &mockSessionRepo{
		createFn: func(_ context.Context, s *model.Session) error {
			createdFor = s.AccountID
			return nil
		},
	}
	svc := NewService(wechatReturning("o-race", "sk"), accounts, sessions, nil, ServiceConfig{})

	if _, err := svc.Login(context.Background(), "code"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if createdFor != existing.ID {
		t.Errorf("session created for %q, want %q", createdFor, existing.ID)
	}
}

func TestLogin_ConcurrentSessionCreate_RefreshesExisting(t *testing.T) {
	existing := &model.Session{ID: 9, AccountID: "acc-1", Token: "11111111-1111-4111-8111-111111111111", LastLogin: time.Now()}
	findCalls := 0
	sessions := &mockSessionRepo{
		findByAccountIDFn: func(_ context.Context, _ string) (*model.Session, error) {
			findCalls++
			if findCalls == 1 {
				return nil, nil
			}
			cp := *existing
			return &cp, nil
		},
		createFn: func(_ context.Context, _ *model.Session) error {
			return repository.ErrDuplicate
		},
	}
	var updated *model.Session
	sessions.updateFn = func(_ context.Context, s *model.Session) error {
		updated = s
		return nil
	}
	accounts := &mockAccountRepo{
		findByWechatIDFn: func(_ context.Context, _ string) (*model.Account, error) {
			return &model.Account{ID: "acc-1", WechatID: "o-1"}, nil
		},
	}
	svc := NewService(wechatReturning("o-1", "sk-new"), accounts, sessions, nil, ServiceConfig{})

	session, err := svc.Login(context.Background(), "code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || updated.ID != 9 {
		t.Fatalf("expected existing session to be updated, got %+v", updated)
	}
	if session.Token != existing.Token {
		t.Errorf("Token = %q, want %q", session.Token, existing.Token)
	}
	if session.SessionKey != "sk-new" {
		t.Errorf("SessionKey = %q, want %q", session.SessionKey, "sk-new")
	}
}

// --- Authenticate ---

func TestAuthenticate_ValidToken_ReturnsAccount(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(wechatReturning("o-auth", "sk"), store, nil, now)

	session, err := svc.Login(context.Background(), "code")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	account, err := svc.Authenticate(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.WechatID != "o-auth" {
		t.Errorf("WechatID = %q, want %q", account.WechatID, "o-auth")
	}
}

func TestAuthenticate_UppercaseToken_IsNormalized(t *testing.T) {
	token := "6f1c2a8e-4b5d-4c3e-9f7a-1b2c3d4e5f60"
	var looked string
	sessions := &mockSessionRepo{
		findByTokenFn: func(_ context.Context, tk string) (*model.Session, error) {
			looked = tk
			return nil, nil
		},
	}
	svc := NewService(nil, &mockAccountRepo{}, sessions, nil, ServiceConfig{})

	_, _ = svc.Authenticate(context.Background(), "6F1C2A8E-4B5D-4C3E-9F7A-1B2C3D4E5F60")
	if looked != token {
		t.Errorf("looked up %q, want %q", looked, token)
	}
}

func TestAuthenticate_Rejections(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	validToken := "6f1c2a8e-4b5d-4c3e-9f7a-1b2c3d4e5f60"

	tests := []struct {
		name     string
		token    string
		session  *model.Session
		account  *model.Account
		wantCode string
	}{
		{
			name:     "malformed token",
			token:    "not-a-uuid",
			wantCode: model.ErrCodeUnauthorized,
		},
		{
			name:     "empty token",
			token:    "",
			wantCode: model.ErrCodeUnauthorized,
		},
		{
			name:     "unknown token",
			token:    validToken,
			wantCode: model.ErrCodeUnauthorized,
		},
		{
			name:     "expired session",
			token:    validToken,
			session:  &model.Session{AccountID: "acc-1", Token: validToken, LastLogin: now.Add(-6*time.Hour - time.Second)},
			account:  &model.Account{ID: "acc-1"},
			wantCode: model.ErrCodeUnauthorized,
		},
		{
			name:     "account missing",
			token:    validToken,
			session:  &model.Session{AccountID: "acc-gone", Token: validToken, LastLogin: now},
			wantCode: model.ErrCodeUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &mockSessionRepo{
				findByTokenFn: func(_ context.Context, _ string) (*model.Session, error) {
					return tt.session, nil
				},
			}
			accounts := &mockAccountRepo{
				findByIDFn: func(_ context.Context, _ string) (*model.Account, error) {
					return tt.account, nil
				},
			}
			svc := NewService(nil, accounts, sessions, nil, ServiceConfig{})
			svc.now = func() time.Time { return now }

			_, err := svc.Authenticate(context.Background(), tt.token)
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestAuthenticate_ExactlyAtWindow_IsAccepted(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	token := "6f1c2a8e-4b5d-4c3e-9f7a-1b2c3d4e5f60"
	sessions := &mockSessionRepo{
		findByTokenFn: func(_ context.Context, _ string) (*model.Session, error) {
			return &model.Session{AccountID: "acc-1", Token: token, LastLogin: now.Add(-6 * time.Hour)}, nil
		},
	}
	accounts := &mockAccountRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id}, nil
		},
	}
	svc := NewService(nil, accounts, sessions, nil, ServiceConfig{})
	svc.now = func() time.Time { return now }

	if _, err := svc.Authenticate(context.Background(), token); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthenticate_StorageError_ReturnsInternal(t *testing.T) {
	sessions := &mockSessionRepo{
		findByTokenFn: func(_ context.Context, _ string) (*model.Session, error) {
			return nil, errors.New("connection reset")
		},
	}
	svc := NewService(nil, &mockAccountRepo{}, sessions, nil, ServiceConfig{})

	_, err := svc.Authenticate(context.Background(), "6f1c2a8e-4b5d-4c3e-9f7a-1b2c3d4e5f60")
	assertAPIErrorCode(t, err, model.ErrCodeInternal)
}

func TestNewService_DefaultStaleWindow(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, ServiceConfig{})
	if svc.config.StaleAfter != DefaultStaleAfter {
		t.Errorf("StaleAfter = %v, want %v", svc.config.StaleAfter, DefaultStaleAfter)
	}
}
