package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.WechatAppID != "wx-test-app" {
		t.Errorf("WechatAppID = %q, want %q", cfg.WechatAppID, "wx-test-app")
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("info log should be suppressed at warn level: %s", buf.String())
	}
	slog.Default().Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn log should be written: %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	// Clear all required env vars
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WECHAT_APP_ID", "")
	t.Setenv("WECHAT_APP_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"with password", "postgres://user:secret@db:5432/wxprofile?sslmode=disable", "postgres://user:xxxxx@db:5432/wxprofile?sslmode=disable"},
		{"without password", "postgres://db:5432/wxprofile", "postgres://db:5432/wxprofile"},
		{"not a url", "host=db password=secret", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskDatabaseURL(tt.in)
			if got != tt.want {
				t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Contains(got, "secret") {
				t.Errorf("masked URL leaks password: %q", got)
			}
		})
	}
}

func TestRunHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
			if err != nil {
				t.Fatalf("failed to parse test server URL: %v", err)
			}

			err = runHealthcheck(port)
			if (err != nil) != tt.wantErr {
				t.Errorf("runHealthcheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunHealthcheck_ServerDown_ReturnsError(t *testing.T) {
	if err := runHealthcheck("1"); err == nil {
		t.Error("expected error when nothing listens on the port")
	}
}

func TestWorkerMetricsServer_ExposesPurgedSessions(t *testing.T) {
	reg, collector := newMetrics()
	collector.RecordSessionsPurged(3)

	srv := newWorkerMetricsServer("9091", reg, nil)
	if srv.Addr != ":9091" {
		t.Errorf("Addr = %q, want %q", srv.Addr, ":9091")
	}

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "wxprofile_sessions_purged_total 3") {
		t.Errorf("metrics output should contain purged session count:\n%s", w.Body.String())
	}
	// 同じレジストリにGo/プロセスのコレクターも登録されている
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output should include go runtime collectors")
	}
}
