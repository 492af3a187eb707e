package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

// idleTracker counts in-flight requests of one page from CDP network events.
type idleTracker struct {
	logger *zap.Logger

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newIdleTracker(logger *zap.Logger) *idleTracker {
	return &idleTracker{
		logger:       logger,
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

// handleEvent is registered with chromedp.ListenTarget.
func (t *idleTracker) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = time.Now()
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
}

// reset forgets requests of a previous document. Requests cut short by a
// navigation do not always report LoadingFinished.
func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[network.RequestID]struct{})
	t.lastActivity = time.Now()
}

func (t *idleTracker) snapshot() (int, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight), t.lastActivity
}

// wait polls until nothing has been in flight for quiet.
func (t *idleTracker) wait(ctx context.Context, quiet time.Duration) error {
	interval := quiet / 2
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, last := t.snapshot()
			if n > 0 {
				t.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", n))
				continue
			}
			if time.Since(last) >= quiet {
				return nil
			}
		}
	}
}
