package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from primary that is also canceled
// when secondary is. Values come from primary only, which is what chromedp
// needs: the session context carries the CDP target, the caller's context
// carries the deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps its parent's values but never expires.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context with ctx's values and none of its cancellation.
// Teardown runs on it so a canceled caller cannot strand the browser.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
