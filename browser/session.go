package browser

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/strategy"
)

// Load runs one ladder attempt and returns a snapshot of the settled page.
// It implements recovery.Loader.
//
// Lifecycle for the browser rungs:
//
//  1. Timeout guard       – ladder timeout, capped by the session attempt cap
//  2. Acquire page        – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup      – about:blank + return to pool (leak prevention)
//  4. Stealth + UA        – mask automation before navigation
//  5. Headers + cookies   – Google referer, job credentials
//  6. Hijack mount        – block configured resource types
//  7. Idle listener       – registered before Navigate for "networkidle"
//  8. Navigate + wait     – per the ladder entry's wait condition
//  9. Actions             – remembered flow actions, or planner suggestions
//  10. Modal dismissal    – cookie banners and interstitials
//  11. Capture            – HTML, title, rendered text regions
//
// Steps 4-7 must happen before step 8: stealth JS, resource blocking and
// the idle listener only take effect for navigations after they are
// installed. Step 3's about:blank uses the original page reference so
// cleanup succeeds even when the attempt context has expired.
func (m *Manager) Load(ctx context.Context, job *models.ScrapeJob, profile *models.DomainProfile, entry config.LadderEntry, flow *models.PastFlow) (*strategy.Snapshot, error) {
	if entry.Wait == "static" {
		return m.loadStatic(ctx, job, profile, entry)
	}

	// ── 1. Timeout guard ─────────────────────────────────────────────
	timeout := entry.Timeout
	if m.sessionCfg.AttemptCap > 0 && timeout > m.sessionCfg.AttemptCap {
		timeout = m.sessionCfg.AttemptCap
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Acquire page from pool ────────────────────────────────────
	m.activePages.Add(1)
	defer m.activePages.Add(-1)

	page, acquireErr := m.pagePool.Get(func() (*rod.Page, error) {
		return m.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewExtractError(
			models.ErrKindBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 3. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank",
				"error", navErr,
			)
		}
		m.pagePool.Put(page)
	}()

	// ── 4. Stealth injection + UA rotation ───────────────────────────
	if m.sessionCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	if ua := m.nextUserAgent(); ua != "" {
		_ = (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page)
	}

	// ── 5. Referer header + credential cookies ───────────────────────
	if u, parseErr := url.Parse(job.URL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(page)
	}
	for name, value := range job.Credentials {
		_, _ = proto.NetworkSetCookie{
			Name:   name,
			Value:  value,
			Domain: job.Domain,
			Path:   "/",
		}.Call(page)
	}

	// ── 6. Mount hijack router ───────────────────────────────────────
	// NOTE: WaitRequestIdle uses the Fetch domain which conflicts with
	// HijackRequests on Chromium 145+. Resource blocking is skipped on the
	// networkidle rung; the later rungs get it.
	if entry.Wait != "networkidle" {
		router := mountHijack(page, m.sessionCfg.BlockedResourceTypes)
		if router != nil {
			defer func() { _ = router.Stop() }()
		}
	}

	// ── 7. Bind context, set up idle listener before navigation ──────
	p := page.Context(ctx)

	var waitIdle func()
	if entry.Wait == "networkidle" {
		waitIdle = p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	}

	// ── 8. Navigate + wait ───────────────────────────────────────────
	if navErr := p.Navigate(job.URL); navErr != nil {
		return nil, classifyNavError(navErr, "navigation to listing failed")
	}

	switch entry.Wait {
	case "networkidle":
		waitIdle()
	case "domstable":
		if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
			slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
				"error", stableErr,
			)
		}
	default: // "load"
		if loadErr := p.WaitLoad(); loadErr != nil {
			return nil, classifyNavError(loadErr, "load event never fired")
		}
	}

	// ── 9. Remembered flow actions, or planner consultation ──────────
	// Both are best-effort: a failed action list must not sink the
	// attempt, extraction may still succeed on the settled page.
	if flow != nil && len(flow.Actions) > 0 {
		if actErr := executeActions(ctx, page, flow.Actions); actErr != nil {
			slog.Warn("remembered flow actions failed",
				"jobID", job.ID, "error", actErr)
		}
	} else if m.planner != nil {
		m.consultPlanner(ctx, page, p, job)
	}

	// ── 10. Modal dismissal ──────────────────────────────────────────
	if m.sessionCfg.DismissModals {
		dismissModals(p)
	}

	// ── 11. Capture ──────────────────────────────────────────────────
	html, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, classifyNavError(htmlErr, "failed to extract page HTML")
	}
	title := evalStringOrEmpty(p, `() => document.title`)

	if kind, msg := detectChallenge(html, title); kind != "" {
		return nil, models.NewExtractError(kind, msg, nil)
	}

	return strategy.NewSnapshot(job.URL, html, title, captureRegions(p), profile), nil
}

// consultPlanner asks the external planner for an action list and runs it.
func (m *Manager) consultPlanner(ctx context.Context, page *rod.Page, p *rod.Page, job *models.ScrapeJob) {
	html, err := p.HTML()
	if err != nil {
		return
	}
	title := evalStringOrEmpty(p, `() => document.title`)
	actions, err := m.planner.Plan(ctx, job.URL, job.Domain, title, html)
	if err != nil {
		slog.Warn("planner consultation failed", "jobID", job.ID, "error", err)
		return
	}
	if len(actions) == 0 {
		return
	}
	if err := executeActions(ctx, page, actions); err != nil {
		slog.Warn("planner actions failed", "jobID", job.ID, "error", err)
	}
}

// regionCaptureJS collects rendered text regions with their geometry and
// font size, for the vision strategy. Tiny and offscreen nodes are skipped.
const regionCaptureJS = `() => {
	const out = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	while (walker.nextNode() && out.length < 400) {
		const node = walker.currentNode;
		const text = node.textContent.trim();
		if (text.length < 2) continue;
		const el = node.parentElement;
		if (!el) continue;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const rect = el.getBoundingClientRect();
		if (rect.width < 1 || rect.height < 1) continue;
		out.push({
			text: text.slice(0, 300),
			x: rect.x, y: rect.y,
			width: rect.width, height: rect.height,
			font_size: parseFloat(style.fontSize) || 0,
		});
	}
	return JSON.stringify(out);
}`

func captureRegions(p *rod.Page) []strategy.TextRegion {
	res, err := p.Eval(regionCaptureJS)
	if err != nil {
		return nil
	}
	var regions []strategy.TextRegion
	if err := json.Unmarshal([]byte(res.Value.Str()), &regions); err != nil {
		return nil
	}
	return regions
}

// dismissModals clicks common close buttons, then removes fixed/sticky
// high-z-index leftovers. Listing sites are fond of login prompts and
// cookie walls that cover the gallery and price header.
func dismissModals(p *rod.Page) {
	closeSelectors := []string{
		"[aria-label='Close Modal']",
		"[data-testid='modal-close-button']",
		".modal-close-button",
		"[aria-label='Close']",
		"[aria-label='close']",
		".modal .close",
		".popup .close",
		".overlay .close",
	}
	for _, sel := range closeSelectors {
		els, err := p.Elements(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		if err := els[0].Click(proto.InputMouseButtonLeft, 1); err == nil {
			time.Sleep(200 * time.Millisecond)
		}
	}

	const js = `() => {
		const els = document.querySelectorAll('*');
		for (const el of els) {
			const style = window.getComputedStyle(el);
			const pos = style.position;
			if (pos === 'fixed' || pos === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900) el.remove();
			}
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}

// challengeMarkers are title/body substrings of common anti-bot walls.
var challengeMarkers = []string{
	"access denied",
	"pardon our interruption",
	"verify you are a human",
	"are you a robot",
	"press & hold",
	"captcha",
	"attention required",
	"cf-challenge",
}

// detectChallenge reports an anti-bot wall so the controller escalates the
// ladder instead of merging garbage fields.
func detectChallenge(html, title string) (kind, msg string) {
	probe := strings.ToLower(title)
	// Challenge pages are small; only scan the head of big documents.
	body := strings.ToLower(html)
	if len(body) > 20_000 {
		body = body[:20_000]
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(probe, marker) || strings.Contains(body, marker) {
			return models.ErrKindAntiBotChallenge, "anti-bot challenge page detected: " + marker
		}
	}
	return "", ""
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// classifyNavError wraps raw errors into typed ExtractErrors so the
// recovery controller can decide whether to escalate the ladder.
func classifyNavError(err error, msg string) *models.ExtractError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewExtractError(models.ErrKindNavigationTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewExtractError(models.ErrKindNavigationTimeout, "attempt canceled", err)
	default:
		return models.NewExtractError(models.ErrKindBrowserCrash, msg, err)
	}
}
