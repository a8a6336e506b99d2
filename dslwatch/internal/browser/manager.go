// CLAUDE:SUMMARY Chrome connection lifecycle: attach to a remote DevTools endpoint or launch locally, health-check and reconnect.
// Package browser owns the CDP side of dslwatch: the Chrome connection, the
// router console tab, a dom.Document backed by that tab, and the session
// cookies the command channel borrows.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is a DevTools endpoint of a browser the user already runs
	// (ws://..., http://host:9222 or just host:9222). Empty launches a
	// local Chrome.
	RemoteURL string

	// Bin overrides the local Chrome binary.
	Bin string

	// UserDataDir keeps the local profile, and with it the router login,
	// across restarts.
	UserDataDir string

	Headless bool

	// HealthInterval is how often the connection is checked. Default: 30s.
	HealthInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ReconnectFunc is called with the new handle after the connection was
// re-established.
type ReconnectFunc func(b *rod.Browser)

// Manager owns the Chrome connection.
type Manager struct {
	cfg         Config
	mu          sync.RWMutex
	browser     *rod.Browser
	lnch        *launcher.Launcher
	startAt     time.Time
	closed      bool
	onReconnect ReconnectFunc
}

// NewManager creates a Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// OnReconnect sets the reconnect callback.
func (m *Manager) OnReconnect(fn ReconnectFunc) {
	m.mu.Lock()
	m.onReconnect = fn
	m.mu.Unlock()
}

// Start connects (or launches) and starts the health monitor, which lives
// until ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)

	return b, nil
}

// Browser returns the current handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Reconnect drops the current connection, connects again and calls the
// reconnect callback.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager is closed")
	}
	m.cfg.Logger.Info("browser: reconnecting", "uptime", time.Since(m.startAt))
	m.cleanup()

	b, err := m.launch()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: reconnect: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	cb := m.onReconnect
	m.mu.Unlock()

	if cb != nil {
		cb(b)
	}
	m.cfg.Logger.Info("browser: reconnected")
	return nil
}

// Close disconnects. A locally launched Chrome is killed; a remote one is
// left running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(m.cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("browser: resolve %s: %w", m.cfg.RemoteURL, err)
		}
		wsURL = u
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	// Routers serve self-signed certificates on https.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if m.lnch != nil {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			if m.closed {
				m.mu.RUnlock()
				return
			}
			b := m.browser
			m.mu.RUnlock()

			if b != nil {
				_, err := proto.BrowserGetVersion{}.Call(b.Context(ctx))
				if err == nil {
					continue
				}
				log.Warn("browser: health check failed", "error", err)
			}
			if err := m.Reconnect(); err != nil {
				log.Error("browser: reconnect failed", "error", err)
			}
		}
	}
}
