package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/engine"
	"github.com/xkilldash9x/domscout/internal/mcp"
)

type fakeExecutor struct {
	mu       sync.Mutex
	cfg      config.Interface
	calls    []descriptor.Descriptor
	cleanups int
	out      engine.Outcome
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, d descriptor.Descriptor) (engine.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	return f.out, f.err
}

func (f *fakeExecutor) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	return nil
}

// setupTest isolates config discovery and swaps the browser-backed executor
// for fake.
func setupTest(t *testing.T, fake *fakeExecutor) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfgFile = ""

	orig := newExecutor
	newExecutor = func(cfg config.Interface, _ *zap.Logger) mcp.Executor {
		fake.cfg = cfg
		return fake
	}
	t.Cleanup(func() {
		newExecutor = orig
		cfgFile = ""
	})
}

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	setupTest(t, &fakeExecutor{})
	out, err := run(t, context.Background(), "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = run(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestResolveCmd_Structured(t *testing.T) {
	fake := &fakeExecutor{out: engine.Outcome{Success: true, URL: "https://example.com/", Action: "click", Target: "Log in"}}
	setupTest(t, fake)

	out, err := run(t, context.Background(), "resolve", "--url", "example.com", "--target", "Log in", "--action", "click")
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	d := fake.calls[0]
	assert.Equal(t, "click", d.NormalizedAction())
	assert.Equal(t, "Log in", d.Query().Raw)
	assert.Equal(t, "example.com", d.URLOverride)
	assert.Equal(t, 1, fake.cleanups, "cleanup always runs")

	var got engine.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "https://example.com/", got.URL)
}

func TestResolveCmd_RawInput(t *testing.T) {
	fake := &fakeExecutor{out: engine.Outcome{Success: true}}
	setupTest(t, fake)

	_, err := run(t, context.Background(), "resolve", "--input", `{"action":"fill","target":"Email","value":"a@b.c"}`)
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "fill", fake.calls[0].NormalizedAction())
	assert.Equal(t, "a@b.c", fake.calls[0].Value)

	_, err = run(t, context.Background(), "resolve", "--input", "  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, descriptor.ErrEmptyInput)
	assert.Len(t, fake.calls, 1, "no call for bad input")
}

func TestResolveCmd_DiscoveryWithoutTarget(t *testing.T) {
	fake := &fakeExecutor{out: engine.Outcome{Success: true}}
	setupTest(t, fake)

	_, err := run(t, context.Background(), "resolve", "--url", "example.com")
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.True(t, fake.calls[0].Target.IsZero())
}

func TestResolveCmd_LaunchFailure(t *testing.T) {
	launchErr := fmt.Errorf("%w: no chrome", engine.ErrSessionLaunch)
	fake := &fakeExecutor{
		out: engine.Outcome{Kind: engine.KindSessionLaunch, Error: launchErr.Error()},
		err: launchErr,
	}
	setupTest(t, fake)

	out, err := run(t, context.Background(), "resolve", "--target", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrSessionLaunch)
	assert.Contains(t, out, `"kind":"session_launch_failure"`, "the outcome is still printed")
	assert.Equal(t, 1, fake.cleanups)
}

func TestResolveCmd_Overrides(t *testing.T) {
	fake := &fakeExecutor{}
	setupTest(t, fake)

	_, err := run(t, context.Background(), "resolve", "--target", "x", "--headful", "--threshold", "70", "--strategy", "broad_only")
	require.NoError(t, err)
	require.NotNil(t, fake.cfg)
	assert.False(t, fake.cfg.Browser().Headless)
	assert.Equal(t, 70.0, fake.cfg.Scanner().Threshold)
	assert.Equal(t, config.ScanStrategyBroadOnly, fake.cfg.Scanner().Strategy)

	_, err = run(t, context.Background(), "resolve", "--target", "x", "--strategy", "sideways")
	assert.Error(t, err)
}

func TestRootCmd_ConfigFile(t *testing.T) {
	fake := &fakeExecutor{}
	setupTest(t, fake)

	path := filepath.Join(t.TempDir(), "domscout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner:\n  threshold: 65\nnavigation:\n  retry_backoff: 2s\n"), 0o600))

	_, err := run(t, context.Background(), "--config", path, "resolve", "--target", "x")
	require.NoError(t, err)
	assert.Equal(t, 65.0, fake.cfg.Scanner().Threshold)
	assert.Equal(t, 2*time.Second, fake.cfg.Navigation().RetryBackoff)

	_, err = run(t, context.Background(), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "resolve")
	assert.Error(t, err)
}

func TestRootCmd_EnvOverride(t *testing.T) {
	fake := &fakeExecutor{}
	setupTest(t, fake)
	t.Setenv("DOMSCOUT_SCANNER_THRESHOLD", "42")

	_, err := run(t, context.Background(), "resolve", "--target", "x")
	require.NoError(t, err)
	assert.Equal(t, 42.0, fake.cfg.Scanner().Threshold)
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	fake := &fakeExecutor{}
	setupTest(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := run(t, ctx, "serve", "--listen", "127.0.0.1:0")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.cleanups, "shutdown releases the browser")
}
