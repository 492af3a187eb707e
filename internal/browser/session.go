package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/dom"
)

// Session is one Chrome process with one browser context and one page. The
// three are created together and torn down together.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger
	idle   *idleTracker

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pageCtx       context.Context
	pageCancel    context.CancelFunc

	mu      sync.Mutex
	lastURL string
}

func launchSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{
		id:  uuid.NewString(),
		cfg: cfg,
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id))
	s.idle = newIdleTracker(s.logger)

	// The process must outlive the caller's context.
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(Detach(ctx), allocatorOptions(cfg)...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Debugf),
	)
	if err := chromedp.Run(s.browserCtx); err != nil {
		s.abort()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	if err := ctx.Err(); err != nil {
		s.abort()
		return nil, err
	}

	s.pageCtx, s.pageCancel = chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
	chromedp.ListenTarget(s.pageCtx, s.idle.handleEvent)

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	if err := chromedp.Run(s.pageCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(userAgent),
	); err != nil {
		s.abort()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return s, nil
}

// abort cancels whatever was created, innermost first.
func (s *Session) abort() {
	if s.pageCancel != nil {
		s.pageCancel()
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// close shuts the page, the browser context and the process down gracefully,
// then forcibly once timeout passes.
func (s *Session) close(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		var errs []error
		if err := chromedp.Cancel(s.pageCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("closing page: %w", err))
		}
		if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
		s.allocCancel()
		done <- errors.Join(errs...)
	}()

	if timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		s.abort()
		return fmt.Errorf("browser shutdown exceeded %s", timeout)
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// run executes actions on the page, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return chromedp.Run(c, actions...)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.idle.reset()
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	s.mu.Lock()
	s.lastURL = url
	s.mu.Unlock()
	return nil
}

// Reload loads the page's current location again, falling back to the last
// URL passed to Navigate when the location is unreadable or blank.
func (s *Session) Reload(ctx context.Context) error {
	url, err := s.URL(ctx)
	if err != nil || url == "" || url == "about:blank" {
		url = s.LastURL()
	}
	if url == "" {
		return errors.New("nothing to reload: no page has been loaded")
	}
	return s.Navigate(ctx, url)
}

// LastURL is the last URL passed to Navigate.
func (s *Session) LastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}

// URL reads the page's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// WaitNetworkIdle returns once no request has been in flight for the
// configured quiet period.
func (s *Session) WaitNetworkIdle(ctx context.Context) error {
	return s.idle.wait(ctx, s.cfg.IdleQuietPeriod)
}

// FindByText implements scanner.Document.
func (s *Session) FindByText(ctx context.Context, text string, limit int) ([]dom.Handle, error) {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return dom.FindByText(c, text, limit)
}

// FindAll implements scanner.Document.
func (s *Session) FindAll(ctx context.Context, selector string, limit int) ([]dom.Handle, error) {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return dom.FindAll(c, selector, limit)
}

// Describe implements scanner.Document.
func (s *Session) Describe(ctx context.Context, h dom.Handle) (dom.Metadata, bool, error) {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return dom.Extract(c, h)
}

// ClearMarks removes the tags left by FindByText and FindAll.
func (s *Session) ClearMarks(ctx context.Context) error {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return dom.ClearMarks(c)
}

// WaitVisible implements action.Page.
func (s *Session) WaitVisible(ctx context.Context, h dom.Handle) error {
	return s.run(ctx, chromedp.WaitVisible(h.Selector, chromedp.ByQuery))
}

// Click implements action.Page.
func (s *Session) Click(ctx context.Context, h dom.Handle) error {
	return s.run(ctx, chromedp.Click(h.Selector, chromedp.ByQuery))
}

// Fill implements action.Page.
func (s *Session) Fill(ctx context.Context, h dom.Handle, value string) error {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return dom.Fill(c, h, value)
}

// Select implements action.Page.
func (s *Session) Select(ctx context.Context, h dom.Handle, value string) error {
	c, cancel := CombineContext(s.pageCtx, ctx)
	defer cancel()
	return dom.SelectOption(c, h, value)
}
