// Package browser owns the Chromium lifecycle and produces page snapshots
// for the recovery controller. One shared browser process backs a reusable
// page pool; every job attempt borrows a tab, loads the target listing and
// hands back a strategy.Snapshot.
package browser

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Planner is the optional external action planner. It sees the loaded page
// and suggests actions to reach extractable state; it never mutates the
// page itself.
type Planner interface {
	Plan(ctx context.Context, pageURL, domain, title, html string) ([]models.Action, error)
}

// Manager manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Manager struct {
	browser    *rod.Browser
	pagePool   rod.Pool[rod.Page]
	browserCfg config.BrowserConfig
	sessionCfg config.SessionConfig
	fetcher    *staticFetcher
	planner    Planner

	activePages atomic.Int32
	uaIndex     atomic.Uint32
}

// NewManager launches a headless browser and initialises the reusable
// page pool.
func NewManager(browserCfg config.BrowserConfig, sessionCfg config.SessionConfig) (*Manager, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewExtractError(
			models.ErrKindBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewExtractError(
			models.ErrKindBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &Manager{
		browser:    browser,
		pagePool:   pool,
		browserCfg: browserCfg,
		sessionCfg: sessionCfg,
		fetcher:    newStaticFetcher(browserCfg.DefaultProxy),
	}, nil
}

// SetPlanner sets the external action planner. When set, sessions consult
// it after the page settles and execute the suggested actions.
func (m *Manager) SetPlanner(p Planner) {
	m.planner = p
}

// Stats returns a snapshot of the pool's current state.
func (m *Manager) Stats() models.SessionStats {
	return models.SessionStats{
		MaxPages:    m.browserCfg.MaxPages,
		ActivePages: int(m.activePages.Load()),
	}
}

// nextUserAgent rotates through the configured pool. Empty string means
// keep the browser's own UA.
func (m *Manager) nextUserAgent() string {
	if len(m.browserCfg.UserAgents) == 0 {
		return ""
	}
	i := m.uaIndex.Add(1)
	return m.browserCfg.UserAgents[int(i)%len(m.browserCfg.UserAgents)]
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (m *Manager) Close() {
	slog.Info("browser shutting down: draining page pool")
	m.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("browser shutting down: closing browser")
	m.browser.MustClose()
	slog.Info("browser shutdown complete")
}
