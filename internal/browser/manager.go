// Package browser owns the single headless Chrome session: launching it on
// demand, exposing the page to the scanner and the action executor, and
// tearing it down.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/observability"
)

// ErrSessionLaunch is returned when the browser process, its context or its
// page could not be created.
var ErrSessionLaunch = errors.New("browser session launch failed")

// Manager owns at most one Session. Acquire and Release are serialized by a
// mutex held for the whole launch or teardown sequence.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	session *Session
}

// NewManager creates a Manager. Nothing is launched until Acquire.
func NewManager(cfg config.Interface, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg.Browser(),
		logger: logger.Named("browser_manager"),
	}
}

// Acquire returns the live session, launching it first if needed. ctx bounds
// the launch only; the session outlives it.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return m.session, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionLaunch, err)
	}

	m.logger.Info("Launching browser session.", zap.Bool("headless", m.cfg.Headless))
	s, err := launchSession(ctx, m.cfg, m.logger)
	if err != nil {
		m.logger.Error("Browser session failed to launch.", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionLaunch, err)
	}
	m.session = s
	observability.SetSessionActive(true)
	m.logger.Info("Browser session ready.", zap.String("session_id", s.ID()))
	return s, nil
}

// Release closes the page, the browser context and the process. It is safe
// to call when nothing was acquired and to call repeatedly. The manager is
// left empty even when a teardown step fails.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return nil
	}
	m.session = nil
	observability.SetSessionActive(false)

	err := s.close(m.cfg.ShutdownTimeout)
	if err != nil {
		m.logger.Warn("Browser teardown finished with errors.", zap.String("session_id", s.ID()), zap.Error(err))
	} else {
		m.logger.Info("Browser session released.", zap.String("session_id", s.ID()))
	}
	return err
}

// Active reports whether a session is currently held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}
