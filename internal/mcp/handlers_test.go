package mcp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/dom"
	"github.com/xkilldash9x/domscout/internal/engine"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, d descriptor.Descriptor) (engine.Outcome, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(engine.Outcome), args.Error(1)
}

func (m *mockExecutor) Cleanup(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func newTestServer(t *testing.T, exec Executor, tweak func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ServerCfg.RateLimit = 1000
	cfg.ServerCfg.RateBurst = 1000
	if tweak != nil {
		tweak(cfg)
	}
	return NewServer(cfg, exec, zaptest.NewLogger(t)).Router()
}

func postCommand(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, &mockExecutor{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(t, &mockExecutor{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	off := newTestServer(t, &mockExecutor{}, func(c *config.Config) { c.ObservabilityCfg.MetricsEnabled = false })
	rec = httptest.NewRecorder()
	off.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommand_Ping(t *testing.T) {
	h := newTestServer(t, &mockExecutor{}, nil)
	rec, env := postCommand(t, h, `{"command":"ping"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	assert.JSONEq(t, `{"message":"pong"}`, string(env.Data))
}

func TestCommand_Errors(t *testing.T) {
	h := newTestServer(t, &mockExecutor{}, nil)

	rec, env := postCommand(t, h, `{"command":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Error, "Invalid request body")

	rec, env = postCommand(t, h, `{"command":"launch_missiles"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown command: launch_missiles", env.Error)

	rec, env = postCommand(t, h, `{"command":"resolve","params":{"input":"   "}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, descriptor.ErrEmptyInput.Error())
}

func TestCommand_Resolve(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.MatchedBy(func(d descriptor.Descriptor) bool {
		return d.NormalizedAction() == "click" && d.Query().Raw == "Log in" && d.URLOverride == "example.com"
	})).Return(engine.Outcome{
		Success: true,
		URL:     "https://example.com/",
		Action:  "click",
		Target:  "Log in",
		Matched: &dom.Metadata{Tag: "button", Text: "Log in", LocatorHint: "get_by_text('Log in')"},
	}, nil).Once()

	h := newTestServer(t, exec, nil)
	rec, env := postCommand(t, h,
		`{"command":"get_dom_selectors","params":{"action":"Click","target":"Log in","url_override":"example.com"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)

	var out engine.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, out.Success)
	assert.Equal(t, "button", out.Matched.Tag)
	exec.AssertExpectations(t)
}

func TestCommand_ResolveRawInput(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.MatchedBy(func(d descriptor.Descriptor) bool {
		return d.URLOverride == "example.com" && d.Target.IsZero()
	})).Return(engine.Outcome{Success: true, URL: "https://example.com/"}, nil).Once()

	h := newTestServer(t, exec, nil)
	rec, _ := postCommand(t, h, `{"command":"scan","params":{"input":"url=example.com"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	exec.AssertExpectations(t)
}

func TestCommand_NoParamsIsDiscovery(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, descriptor.Descriptor{}).
		Return(engine.Outcome{Success: true, MetaData: []dom.Metadata{{Tag: "a"}}}, nil).Once()

	h := newTestServer(t, exec, nil)
	rec, _ := postCommand(t, h, `{"command":"resolve"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	exec.AssertExpectations(t)
}

func TestCommand_DiagnosticIsOK(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).Return(engine.Outcome{
		Kind:  engine.KindAmbiguousMatch,
		Error: `2 elements match "Login"`,
	}, nil).Once()

	h := newTestServer(t, exec, nil)
	rec, env := postCommand(t, h, `{"command":"resolve","params":{"action":"click","target":"Login"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	assert.Contains(t, string(env.Data), `"kind":"ambiguous_match"`)
}

func TestCommand_LaunchFailureIs503(t *testing.T) {
	exec := &mockExecutor{}
	launchErr := fmt.Errorf("%w: chrome not found", engine.ErrSessionLaunch)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(engine.Outcome{Kind: engine.KindSessionLaunch, Error: launchErr.Error()}, launchErr).Once()

	h := newTestServer(t, exec, nil)
	rec, env := postCommand(t, h, `{"command":"resolve","params":{"target":"x"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Error, "chrome not found")
}

func TestCommand_CleanupAlwaysSucceeds(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Cleanup", mock.Anything).Return(fmt.Errorf("browser already gone")).Once()

	h := newTestServer(t, exec, nil)
	rec, env := postCommand(t, h, `{"command":"cleanup"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	exec.AssertExpectations(t)
}

func TestCommand_RateLimited(t *testing.T) {
	h := newTestServer(t, &mockExecutor{}, func(c *config.Config) {
		c.ServerCfg.RateLimit = 0.001
		c.ServerCfg.RateBurst = 1
	})

	rec, _ := postCommand(t, h, `{"command":"ping"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := postCommand(t, h, `{"command":"ping"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "error", env.Status)

	// Health checks are not limited.
	hr := httptest.NewRecorder()
	h.ServeHTTP(hr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, hr.Code)
}

func TestServe_ShutdownCleansUp(t *testing.T) {
	exec := &mockExecutor{}
	// Cleanup gets a live, bounded context of its own, not the canceled serve ctx.
	exec.On("Cleanup", mock.MatchedBy(func(ctx context.Context) bool {
		_, bounded := ctx.Deadline()
		return ctx.Err() == nil && bounded
	})).Return(nil).Once()

	cfg := config.NewDefaultConfig()
	srv := NewServer(cfg, exec, zaptest.NewLogger(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	exec.AssertExpectations(t)
}

func TestDecodeParams(t *testing.T) {
	d, err := decodeParams(nil)
	require.NoError(t, err)
	assert.Equal(t, descriptor.Descriptor{}, d)

	d, err = decodeParams(json.RawMessage(`{"input":"{\"action\":\"fill\",\"target\":\"Email\",\"value\":\"a@b.c\"}"}`))
	require.NoError(t, err)
	assert.Equal(t, "fill", d.NormalizedAction())
	assert.Equal(t, "a@b.c", d.Value)

	d, err = decodeParams(json.RawMessage(`{"action":{"description":"select"},"target":["plan","Pro"],"value":3}`))
	require.NoError(t, err)
	assert.Equal(t, "select", d.NormalizedAction())
	assert.Equal(t, "3", d.Value)

	_, err = decodeParams(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
