// Package browser drives a Chromium page over the DevTools protocol and
// exposes it to the collection engine as an internal.Document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/iksnae/feed-collector/internal"
)

// Options configures how the browser is obtained
type Options struct {
	// DebuggerURL attaches to a running browser (http or ws URL) instead of
	// launching one.
	DebuggerURL string
	Headless    bool
	Bin         string
	UserDataDir string
	// PollInterval is how often mutation counters are drained from the page
	PollInterval time.Duration
}

const defaultPollInterval = 250 * time.Millisecond

// Manager owns the browser connection
type Manager struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	attached bool
}

// NewManager creates a manager; call Start before opening pages
func NewManager(opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Manager{opts: opts, log: internal.Logger().Named("browser")}
}

// FromConfig maps collector configuration to browser options
func FromConfig(cfg *internal.Config) Options {
	return Options{
		DebuggerURL: cfg.DebuggerURL,
		Headless:    cfg.Headless,
		Bin:         cfg.BrowserBin,
		UserDataDir: cfg.UserDataDir,
	}
}

// Start connects to the configured debugger or launches a browser
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, reconnecting")
		m.browser = nil
	}

	controlURL, err := m.controlURLLocked()
	if err != nil {
		return err
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	m.browser = b
	m.log.Info("browser connected", zap.String("control_url", controlURL), zap.Bool("attached", m.attached))
	return nil
}

func (m *Manager) controlURLLocked() (string, error) {
	if m.opts.DebuggerURL != "" {
		u, err := launcher.ResolveURL(m.opts.DebuggerURL)
		if err != nil {
			return "", fmt.Errorf("resolve debugger url %s: %w", m.opts.DebuggerURL, err)
		}
		m.attached = true
		return u, nil
	}

	l := launcher.New().Headless(m.opts.Headless)
	if m.opts.Bin != "" {
		l = l.Bin(m.opts.Bin)
	}
	if m.opts.UserDataDir != "" {
		l = l.UserDataDir(m.opts.UserDataDir)
	}
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	m.launcher = l
	m.attached = false
	return u, nil
}

// Open navigates a new tab to url and waits for it to load
func (m *Manager) Open(ctx context.Context, url string) (*Document, error) {
	b, err := m.connected()
	if err != nil {
		return nil, err
	}
	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", url, err)
	}
	m.log.Info("page opened", zap.String("url", url))
	return NewDocument(page.Context(context.Background()), m.opts.PollInterval), nil
}

// Attach picks an already open tab whose URL contains match. An empty match
// takes the first tab.
func (m *Manager) Attach(ctx context.Context, match string) (*Document, error) {
	b, err := m.connected()
	if err != nil {
		return nil, err
	}
	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if match == "" || strings.Contains(info.URL, match) {
			m.log.Info("attached to page", zap.String("url", info.URL), zap.String("title", info.Title))
			return NewDocument(p, m.opts.PollInterval), nil
		}
	}
	return nil, fmt.Errorf("no open page matches %q", match)
}

// Document opens url, or attaches to a tab showing it when the manager is
// connected to a user's browser.
func (m *Manager) Document(ctx context.Context, url string) (*Document, error) {
	m.mu.Lock()
	attached := m.attached
	m.mu.Unlock()
	if attached {
		if doc, err := m.Attach(ctx, url); err == nil {
			return doc, nil
		}
	}
	if url == "" {
		return nil, errors.New("no feed url configured")
	}
	return m.Open(ctx, url)
}

func (m *Manager) connected() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return m.browser, nil
}

// Shutdown closes a launched browser. An attached browser belongs to the
// user and is left running.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil && !m.attached {
		err = m.browser.Close()
	}
	// Cleanup removes the profile dir, so only temporary profiles get it
	if m.launcher != nil && m.opts.UserDataDir == "" {
		m.launcher.Cleanup()
	}
	m.launcher = nil
	m.browser = nil
	return err
}
