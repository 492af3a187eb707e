// Package engine resolves a loosely described element on the live page and
// acts on it. It owns the browser session lock and the one-shot retry after
// an aborted navigation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/domscout/internal/action"
	"github.com/xkilldash9x/domscout/internal/browser"
	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/observability"
	"github.com/xkilldash9x/domscout/internal/scanner"
)

// maxAttempts is the first try plus one retry after an aborted navigation.
const maxAttempts = 2

const (
	abortedMarker      = "net::ERR_ABORTED"
	markCleanupTimeout = 2 * time.Second
	urlReadTimeout     = 2 * time.Second
)

// ErrSessionLaunch is browser.ErrSessionLaunch, the only error Execute returns.
var ErrSessionLaunch = browser.ErrSessionLaunch

// Engine serializes calls against one browser session.
type Engine struct {
	provider Provider
	scanner  *scanner.Scanner
	executor *action.Executor
	nav      config.NavigationConfig
	logger   *zap.Logger

	lock  *semaphore.Weighted
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Engine around provider.
func New(cfg config.Interface, provider Provider, logger *zap.Logger) *Engine {
	logger = logger.Named("engine")
	return &Engine{
		provider: provider,
		scanner:  scanner.New(scanner.OptionsFromConfig(cfg.Scanner()), logger),
		executor: action.NewExecutor(cfg.Action(), logger),
		nav:      cfg.Navigation(),
		logger:   logger,
		lock:     semaphore.NewWeighted(1),
		sleep:    sleepContext,
	}
}

// NewWithBrowser creates an Engine backed by a headless Chrome launched on
// first use.
func NewWithBrowser(cfg config.Interface, logger *zap.Logger) *Engine {
	return New(cfg, NewBrowserProvider(browser.NewManager(cfg, logger)), logger)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs one resolve-and-act call. Every failure after the session
// exists is reported in the Outcome; the error is non-nil only when the
// session could not be launched.
func (e *Engine) Execute(ctx context.Context, d descriptor.Descriptor) (out Outcome, err error) {
	requestID := uuid.NewString()
	q := d.Query()
	verb := d.NormalizedAction()
	log := e.logger.With(
		zap.String("request_id", requestID),
		zap.String("action", verb),
		zap.String("target", q.Raw),
	)

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "engine.Execute",
		attribute.String("request_id", requestID),
		attribute.String("action", verb),
		attribute.String("target", q.Raw),
	)
	defer func() {
		out.RequestID = requestID
		if out.Action == "" {
			out.Action = verb
		}
		if out.Target == "" {
			out.Target = q.Raw
		}
		observability.ObserveCall(out.metricLabel(), time.Since(start).Seconds())
		observability.EndSpan(span, err)
		log.Info("Call finished.",
			zap.Bool("success", out.Success),
			zap.String("kind", string(out.Kind)),
			zap.Int("attempts", out.Attempts),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	if err := e.lock.Acquire(ctx, 1); err != nil {
		return Outcome{Kind: KindResolutionFailure, Error: fmt.Sprintf("canceled while waiting for the browser: %v", err)}, nil
	}
	defer e.lock.Release(1)

	sess, err := e.provider.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, ErrSessionLaunch) {
			err = fmt.Errorf("%w: %w", ErrSessionLaunch, err)
		}
		// Nothing may be left half started.
		if rerr := e.provider.Release(); rerr != nil {
			log.Warn("Teardown after failed launch reported errors.", zap.Error(rerr))
		}
		return Outcome{Kind: KindSessionLaunch, Error: err.Error(), URL: d.URLOverride}, err
	}
	defer e.clearMarks(ctx, sess, log)

	target := normalizeURL(d.URLOverride)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var abortErr error
		out, abortErr = e.attempt(ctx, sess, d, q, target, log)
		out.Attempts = attempt
		if abortErr == nil {
			return out, nil
		}

		if attempt == maxAttempts {
			log.Error("Navigation aborted again after retry.", zap.Error(abortErr))
			return e.aborted(ctx, sess, abortErr, attempt), nil
		}
		log.Warn("Navigation aborted, reloading and retrying.", zap.Error(abortErr))
		observability.ObserveNavigationRetry()

		if err := e.sleep(ctx, e.nav.RetryBackoff); err != nil {
			return e.aborted(ctx, sess, err, attempt), nil
		}
		reloadCtx, cancel := context.WithTimeout(ctx, e.nav.ReloadTimeout)
		err := sess.Reload(reloadCtx)
		cancel()
		if err != nil {
			log.Error("Reload after aborted navigation failed.", zap.Error(err))
			return e.aborted(ctx, sess, err, attempt), nil
		}
	}
	return out, nil
}

// attempt is one pass through navigate, scan and act. The error is non-nil
// only for an aborted navigation, which the caller may retry; everything else
// is already folded into the Outcome.
func (e *Engine) attempt(ctx context.Context, sess Session, d descriptor.Descriptor, q descriptor.Query, target string, log *zap.Logger) (Outcome, error) {
	if target != "" {
		current, err := sess.URL(ctx)
		if isAborted(err) {
			return Outcome{}, err
		}
		if err != nil || !sameURL(current, target) {
			diag, err := e.navigate(ctx, sess, target, log)
			if err != nil {
				return Outcome{}, err
			}
			if diag != nil {
				return *diag, nil
			}
		}
	}

	res, err := e.scanner.Scan(ctx, sess, q.Search, q.Hint)
	if err != nil {
		if isAborted(err) {
			return Outcome{}, err
		}
		return Outcome{
			Kind:  KindResolutionFailure,
			Error: fmt.Sprintf("unable to resolve %q: %v", q.Raw, err),
			URL:   e.currentURL(ctx, sess),
		}, nil
	}

	verb := d.NormalizedAction()
	if !res.Unique() {
		return e.unresolved(ctx, sess, q, verb, res), nil
	}
	if verb == "" {
		matched := res.Matched
		return Outcome{Success: true, URL: e.currentURL(ctx, sess), Matched: &matched}, nil
	}

	ar := e.executor.Act(ctx, sess, *res.Match, verb, q.Raw, d.Value)
	matched := res.Matched
	if ar.Err == nil {
		return Outcome{Success: true, URL: ar.URL, Action: string(ar.Action), Matched: &matched}, nil
	}
	// The action may already have taken effect, so even an aborted load it
	// triggered is reported rather than retried.

	out := Outcome{Action: verb, URL: ar.URL, Error: ar.Err.Error(), Matched: &matched}
	if out.URL == "" {
		out.URL = e.currentURL(ctx, sess)
	}
	switch {
	case errors.Is(ar.Err, action.ErrNotVisible):
		out.Kind = KindNotVisible
		out.Error = fmt.Sprintf("element %q was found but is not visible on the current page", q.Raw)
	default:
		out.Kind = KindActionFailure
		out.Error = fmt.Sprintf("element %q was found but %s failed: %v", q.Raw, verb, ar.Err)
	}
	return out, nil
}

// navigate loads target. It returns an error for an aborted load, a
// diagnostic for any other failure, and neither on success.
func (e *Engine) navigate(ctx context.Context, sess Session, target string, log *zap.Logger) (*Outcome, error) {
	navCtx, cancel := context.WithTimeout(ctx, e.nav.Timeout)
	defer cancel()

	log.Info("Navigating.", zap.String("url", target))
	if err := sess.Navigate(navCtx, target); err != nil {
		if isAborted(err) {
			return nil, err
		}
		return &Outcome{
			Kind:  KindNavigationFailure,
			Error: fmt.Sprintf("unable to load %s: %v", target, err),
			URL:   e.currentURL(ctx, sess),
		}, nil
	}
	// Pages that poll never go idle; the load event already fired.
	if err := sess.WaitNetworkIdle(navCtx); err != nil {
		log.Warn("Network did not go idle after navigation.", zap.String("url", target), zap.Error(err))
	}
	return nil, nil
}

func (e *Engine) unresolved(ctx context.Context, sess Session, q descriptor.Query, verb string, res scanner.Result) Outcome {
	out := Outcome{URL: e.currentURL(ctx, sess), MetaData: res.Candidates}

	// Discovery: nothing to look for and nothing to do.
	if strings.TrimSpace(q.Search) == "" && verb == "" {
		out.Success = true
		return out
	}

	out.Kind = KindAmbiguousMatch
	switch {
	case res.Ambiguous:
		out.Error = fmt.Sprintf("%d elements match %q on the current page; refine the target using one of the candidates in meta_data",
			len(res.Candidates), q.Raw)
	case len(res.Candidates) == 0:
		out.Error = fmt.Sprintf("no element matching %q and no interactive elements found on the current page", q.Raw)
	default:
		out.Error = fmt.Sprintf("no element matching %q on the current page; choose a target that approximately matches one of the candidates in meta_data", q.Raw)
	}
	return out
}

func (e *Engine) aborted(ctx context.Context, sess Session, cause error, attempts int) Outcome {
	u := e.currentURL(ctx, sess)
	return Outcome{
		Kind:     KindNavigationAborted,
		Error:    fmt.Sprintf("unable to load %s after retry: %v", u, cause),
		URL:      u,
		Attempts: attempts,
	}
}

// currentURL reads the page URL for a diagnostic, even after ctx expired.
func (e *Engine) currentURL(ctx context.Context, sess Session) string {
	c, cancel := context.WithTimeout(browser.Detach(ctx), urlReadTimeout)
	defer cancel()
	u, err := sess.URL(c)
	if err != nil {
		return ""
	}
	return u
}

// clearMarks strips element tags left by the scan, even if ctx is done.
func (e *Engine) clearMarks(ctx context.Context, sess Session, log *zap.Logger) {
	c, cancel := context.WithTimeout(browser.Detach(ctx), markCleanupTimeout)
	defer cancel()
	if err := sess.ClearMarks(c); err != nil {
		log.Debug("Could not clear element marks.", zap.Error(err))
	}
}

// Cleanup releases the browser session once no call is in flight. Safe to
// call repeatedly. When ctx ends before the in-flight call does, the session
// is released anyway and ctx's error is returned alongside any teardown error.
func (e *Engine) Cleanup(ctx context.Context) error {
	if err := e.lock.Acquire(ctx, 1); err != nil {
		e.logger.Warn("Call still in flight at cleanup; releasing the browser anyway.", zap.Error(err))
		return errors.Join(err, e.provider.Release())
	}
	defer e.lock.Release(1)
	return e.provider.Release()
}

func isAborted(err error) bool {
	return err != nil && strings.Contains(err.Error(), abortedMarker)
}

// normalizeURL adds https:// to an override without a scheme.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "about:") && !strings.HasPrefix(raw, "data:") {
		return "https://" + raw
	}
	return raw
}

// sameURL compares two URLs ignoring a trailing slash and host case.
func sameURL(a, b string) bool {
	return canonicalURL(a) == canonicalURL(b)
}

func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSuffix(strings.TrimSpace(raw), "/")
	}
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	return strings.TrimSuffix(u.String(), "/")
}
