package browser

import (
	"context"
	"testing"
	"time"

	"github.com/iksnae/feed-collector/internal"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Options{})
	if m.opts.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", m.opts.PollInterval, defaultPollInterval)
	}

	m = NewManager(Options{PollInterval: time.Second})
	if m.opts.PollInterval != time.Second {
		t.Errorf("explicit PollInterval was overridden: %v", m.opts.PollInterval)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := internal.DefaultConfig()
	cfg.DebuggerURL = "http://127.0.0.1:9222"
	cfg.Headless = true
	cfg.BrowserBin = "/usr/bin/chromium"

	opts := FromConfig(&cfg)
	if opts.DebuggerURL != cfg.DebuggerURL || !opts.Headless || opts.Bin != cfg.BrowserBin {
		t.Errorf("FromConfig() = %+v", opts)
	}
	if opts.UserDataDir != cfg.UserDataDir {
		t.Errorf("UserDataDir = %q, want %q", opts.UserDataDir, cfg.UserDataDir)
	}
}

func TestManagerNotConnected(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()

	if _, err := m.Open(ctx, "about:blank"); err == nil {
		t.Error("Open should fail before Start")
	}
	if _, err := m.Attach(ctx, ""); err == nil {
		t.Error("Attach should fail before Start")
	}
	if err := m.Shutdown(); err != nil {
		t.Errorf("Shutdown on an idle manager: %v", err)
	}
}

func TestWatchRejectsForeignNode(t *testing.T) {
	d := NewDocument(nil, 0)
	if d.poll != defaultPollInterval {
		t.Errorf("poll = %v, want default", d.poll)
	}
	if _, err := d.Watch(context.Background(), internal.NewFakeNode("x")); err == nil {
		t.Error("Watch should reject nodes from another document")
	}
}
