package engine

import (
	"context"

	"github.com/xkilldash9x/domscout/internal/action"
	"github.com/xkilldash9x/domscout/internal/browser"
	"github.com/xkilldash9x/domscout/internal/scanner"
)

// Session is the page the engine drives for one call.
type Session interface {
	scanner.Document
	action.Page
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	ClearMarks(ctx context.Context) error
}

// Provider hands out the single session and tears it down.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
	Release() error
}

// browserProvider adapts browser.Manager to Provider.
type browserProvider struct {
	m *browser.Manager
}

// NewBrowserProvider wraps a browser.Manager.
func NewBrowserProvider(m *browser.Manager) Provider {
	return browserProvider{m: m}
}

func (p browserProvider) Acquire(ctx context.Context) (Session, error) {
	s, err := p.m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p browserProvider) Release() error { return p.m.Release() }
