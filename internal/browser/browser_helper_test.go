package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/domscout/internal/config"
)

// Chrome processes are heavy; keep at most one per test binary.
var (
	browserSemaphore     *semaphore.Weighted
	browserSemaphoreOnce sync.Once
)

const (
	browserTestTimeout      = 90 * time.Second
	semaphoreAcquireTimeout = 30 * time.Second
)

func getBrowserSemaphore() *semaphore.Weighted {
	browserSemaphoreOnce.Do(func() {
		browserSemaphore = semaphore.NewWeighted(1)
	})
	return browserSemaphore
}

// findChrome returns a Chrome binary path, or "" when none is installed.
func findChrome() string {
	if p := os.Getenv("DOMSCOUT_CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

type testFixture struct {
	Config  *config.Config
	Manager *Manager
	Logger  *zap.Logger
	Ctx     context.Context
}

// newTestFixture prepares a Manager backed by a real headless Chrome. It skips
// the test when Chrome is unavailable or under -short.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests are skipped in -short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("no Chrome binary found")
	}

	ctx, cancel := context.WithTimeout(context.Background(), browserTestTimeout)
	t.Cleanup(cancel)

	sem := getBrowserSemaphore()
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, semaphoreAcquireTimeout)
	defer cancelAcquire()
	require.NoError(t, sem.Acquire(acquireCtx, 1), "timed out waiting for a browser slot")
	t.Cleanup(func() { sem.Release(1) })

	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.ExecPath = chrome
	cfg.BrowserCfg.IdleQuietPeriod = 100 * time.Millisecond
	logger := zaptest.NewLogger(t)

	m := NewManager(cfg, logger)
	t.Cleanup(func() {
		require.NoError(t, m.Release())
	})
	return &testFixture{Config: cfg, Manager: m, Logger: logger, Ctx: ctx}
}

// serveHTML serves body at / for the lifetime of the test.
func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
