// Package action performs a single click, fill or select against a resolved
// element with bounded waits on either side.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/dom"
	"github.com/xkilldash9x/domscout/internal/observability"
)

var (
	// ErrNotVisible means the element did not become visible in time; the
	// action was not attempted.
	ErrNotVisible = errors.New("element not visible")
	// ErrActionFailed wraps any failure while performing the action.
	ErrActionFailed = errors.New("action failed")
	// ErrUnsupportedAction is returned for verbs other than click, fill and select.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Kind is an action verb.
type Kind string

const (
	Click  Kind = "click"
	Fill   Kind = "fill"
	Select Kind = "select"
)

// ParseKind normalizes a verb.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Click, Fill, Select:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, s)
	}
}

// Page is the subset of a browser session an action needs.
type Page interface {
	WaitVisible(ctx context.Context, h dom.Handle) error
	Click(ctx context.Context, h dom.Handle) error
	Fill(ctx context.Context, h dom.Handle, value string) error
	Select(ctx context.Context, h dom.Handle, value string) error
	WaitNetworkIdle(ctx context.Context) error
	URL(ctx context.Context) (string, error)
}

// Result describes one attempted action.
type Result struct {
	Success bool
	Action  Kind
	Target  string
	// URL is the page URL once the action settled, or whatever could be read
	// after a failure.
	URL string
	Err error
}

// Executor performs actions using the configured timeouts.
type Executor struct {
	cfg    config.ActionConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor.
func NewExecutor(cfg config.ActionConfig, logger *zap.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logger.Named("action"), sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Act performs verb on the element behind h. target is the caller's
// description, carried into the result and errors. Failures are reported in
// Result.Err, never by panicking.
func (e *Executor) Act(ctx context.Context, page Page, h dom.Handle, verb, target, value string) (res Result) {
	ctx, span := observability.StartSpan(ctx, "action.Act",
		attribute.String("action", verb),
		attribute.String("target", target),
	)
	res = Result{Action: Kind(verb), Target: target}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("%w: %s on %q: panic: %v", ErrActionFailed, verb, target, r)
		}
		observability.EndSpan(span, res.Err)
	}()

	kind, err := ParseKind(verb)
	if err != nil {
		res.Err = err
		res.URL = e.currentURL(ctx, page)
		return res
	}
	res.Action = kind
	log := e.logger.With(zap.String("action", string(kind)), zap.String("target", target))

	if err := e.withTimeout(ctx, e.cfg.VisibilityTimeout, func(c context.Context) error {
		return page.WaitVisible(c, h)
	}); err != nil {
		log.Debug("Element did not become visible.", zap.Error(err))
		res.Err = fmt.Errorf("%w within %s: %q: %w", ErrNotVisible, e.cfg.VisibilityTimeout, target, err)
		res.URL = e.currentURL(ctx, page)
		return res
	}

	if err := e.perform(ctx, page, h, kind, value); err != nil {
		log.Debug("Action failed.", zap.Error(err))
		res.Err = fmt.Errorf("%w: %s on %q: %w", ErrActionFailed, kind, target, err)
		res.URL = e.currentURL(ctx, page)
		return res
	}

	if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
		res.Err = fmt.Errorf("%w: %s on %q: %w", ErrActionFailed, kind, target, err)
		return res
	}
	url, err := page.URL(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: reading url after %s: %w", ErrActionFailed, kind, err)
		return res
	}
	res.URL = url
	res.Success = true
	log.Info("Action completed.", zap.String("url", url))
	return res
}

func (e *Executor) perform(ctx context.Context, page Page, h dom.Handle, kind Kind, value string) error {
	switch kind {
	case Click:
		if err := e.withTimeout(ctx, e.cfg.VisibilityTimeout, func(c context.Context) error {
			return page.Click(c, h)
		}); err != nil {
			return err
		}
		if err := e.withTimeout(ctx, e.cfg.NetworkIdleTimeout, page.WaitNetworkIdle); err != nil {
			return fmt.Errorf("waiting for network idle: %w", err)
		}
		return nil
	case Fill:
		if err := e.withTimeout(ctx, e.cfg.VisibilityTimeout, func(c context.Context) error {
			return page.Fill(c, h, value)
		}); err != nil {
			return err
		}
	case Select:
		if err := e.withTimeout(ctx, e.cfg.VisibilityTimeout, func(c context.Context) error {
			return page.Select(c, h, value)
		}); err != nil {
			return err
		}
	}
	return e.sleep(ctx, e.cfg.SettleDelay)
}

func (e *Executor) withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	c, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(c)
}

// currentURL reads the URL for diagnostics; failures yield "".
func (e *Executor) currentURL(ctx context.Context, page Page) string {
	url, err := page.URL(ctx)
	if err != nil {
		e.logger.Debug("Could not read page URL.", zap.Error(err))
		return ""
	}
	return url
}
