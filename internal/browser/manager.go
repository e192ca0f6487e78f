// Package browser provides the go-rod backed interaction capability: one
// managed headless Chrome, handing out an isolated incognito page per
// verification attempt.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/code-enforcerr/MyMutualAME/internal/verify"
)

// Config holds browser settings.
type Config struct {
	TargetURL           string `yaml:"target_url"`
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	FindTimeoutMs       int    `yaml:"find_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		NavigationTimeoutMs: 30000,
		FindTimeoutMs:       3000,
	}
}

// NavigationTimeout returns the page navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// FindTimeout returns the per-locator element search timeout.
func (c Config) FindTimeout() time.Duration {
	if c.FindTimeoutMs == 0 {
		return 3 * time.Second
	}
	return time.Duration(c.FindTimeoutMs) * time.Millisecond
}

// healthCheck reports whether a connected browser is still usable.
// Injectable so lifecycle tests don't need a real Chrome.
type healthCheck func(b *rod.Browser) error

func defaultHealthCheck(b *rod.Browser) error {
	_, err := b.Version()
	return err
}

// Manager owns one lazily-launched Chrome. Lifecycle: created on first
// Probe, reused while the health check passes, relaunched on disconnect.
// Probes never share browser state; each gets its own incognito context.
// health, launch, and teardown are injectable so the lifecycle is
// testable without a real Chrome.
type Manager struct {
	cfg      Config
	log      *zap.Logger
	health   healthCheck
	launch   func(ctx context.Context) (*rod.Browser, error)
	teardown func(b *rod.Browser) error

	mu      sync.Mutex
	browser *rod.Browser
}

// NewManager builds a Manager. The browser is not launched until the
// first Probe.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	m := &Manager{cfg: cfg, log: log, health: defaultHealthCheck}
	m.launch = m.launchBrowser
	m.teardown = func(b *rod.Browser) error { return b.Close() }
	return m
}

// launchBrowser starts a fresh Chrome and connects to it.
func (m *Manager) launchBrowser(ctx context.Context) (*rod.Browser, error) {
	l := launcher.New().Headless(m.cfg.Headless)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	m.log.Info("browser launched", zap.Bool("headless", m.cfg.Headless))
	return browser, nil
}

// ensureBrowser returns a healthy browser, relaunching if the current one
// has gone away.
func (m *Manager) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if err := m.health(m.browser); err == nil {
			return m.browser, nil
		}
		m.log.Warn("browser connection lost, relaunching")
		_ = m.teardown(m.browser)
		m.browser = nil
	}

	browser, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = browser
	return browser, nil
}

// Probe opens a fresh incognito page on the target form. The returned
// session is exclusively owned by the caller.
func (m *Manager) Probe(ctx context.Context) (*Probe, error) {
	browser, err := m.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Navigate(m.cfg.TargetURL); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", m.cfg.TargetURL, err)
	}
	_ = page.Timeout(m.cfg.NavigationTimeout()).WaitLoad()

	return &Probe{page: page, findTimeout: m.cfg.FindTimeout(), log: m.log}, nil
}

// factory adapts the concrete Probe to the executor's Session interface.
type factory struct{ m *Manager }

func (f factory) Probe(ctx context.Context) (verify.Session, error) {
	return f.m.Probe(ctx)
}

// Factory exposes the manager as a verify.SessionFactory.
func (m *Manager) Factory() verify.SessionFactory { return factory{m: m} }

// Shutdown closes the managed browser.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil
	}
	err := m.teardown(m.browser)
	m.browser = nil
	return err
}
