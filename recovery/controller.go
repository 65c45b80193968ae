package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/merge"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/registry"
	"github.com/use-agent/harvest/strategy"
)

// Loader produces a page snapshot for one ladder attempt. The browser
// manager is the production implementation; tests substitute fakes.
type Loader interface {
	Load(ctx context.Context, job *models.ScrapeJob, profile *models.DomainProfile, entry config.LadderEntry, flow *models.PastFlow) (*strategy.Snapshot, error)
}

// FlowMemory is the optional vector-memory collaborator. A nil FlowMemory
// degrades to ladder-only recovery.
type FlowMemory interface {
	Lookup(ctx context.Context, domain string) ([]models.PastFlow, error)
	Store(ctx context.Context, domain string, flow models.PastFlow) error
}

// Controller walks a job through the load ladder until an attempt's merged
// record clears the minimum confidence, retrying with exponential backoff,
// and reports failures to the domain circuit breaker.
type Controller struct {
	cfg     config.RecoveryConfig
	extract config.ExtractConfig
	loader  Loader
	merger  *merge.Merger
	reg     *registry.Registry
	counter *FailureCounter
	memory  FlowMemory

	sleep func(context.Context, time.Duration)
}

// NewController wires a Controller. memory may be nil.
func NewController(cfg config.RecoveryConfig, extract config.ExtractConfig, loader Loader, merger *merge.Merger, reg *registry.Registry, counter *FailureCounter, memory FlowMemory) *Controller {
	return &Controller{
		cfg:     cfg,
		extract: extract,
		loader:  loader,
		merger:  merger,
		reg:     reg,
		counter: counter,
		memory:  memory,
		sleep:   sleepCtx,
	}
}

// Run executes one admitted job to completion. It always returns an
// outcome; extraction trouble surfaces as status partial/failed, never as
// an error to the caller.
func (c *Controller) Run(ctx context.Context, job *models.ScrapeJob) *models.JobOutcome {
	profile := c.reg.Route(job.URL)
	ladder := c.ladder()

	outcome := &models.JobOutcome{
		JobID:  job.ID,
		URL:    job.URL,
		Domain: job.Domain,
	}

	var (
		best     *models.MergedRecord
		lastKind string
		flow     *models.PastFlow
	)

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(ctx, c.backoff(attempt))
		}
		if ctx.Err() != nil {
			lastKind = models.ErrKindNavigationTimeout
			break
		}

		entry := ladder[min(attempt, len(ladder)-1)]

		// Last chance: ask the vector memory for a flow that worked for
		// this domain before, to bias selector choice on the final retry.
		if flow == nil && c.memory != nil && attempt == c.cfg.MaxAttempts-1 {
			flow = c.recallFlow(ctx, job.Domain)
		}

		attemptProfile := profile
		if flow != nil {
			attemptProfile = biasProfile(profile, flow)
		}

		start := time.Now()
		snap, err := c.loader.Load(ctx, job, attemptProfile, entry, flow)
		timing := models.AttemptTiming{
			Wait:       entry.Wait,
			DurationMs: time.Since(start).Milliseconds(),
		}

		if err != nil {
			kind := models.KindOf(err)
			timing.ErrKind = kind
			outcome.Attempts = append(outcome.Attempts, timing)
			lastKind = kind
			slog.Info("attempt failed to load",
				"job", job.ID, "domain", job.Domain,
				"wait", entry.Wait, "attempt", attempt+1, "err_kind", kind,
			)
			continue
		}

		if drifted, dist := c.reg.LayoutDrifted(job.Domain, snap.Fingerprint); drifted {
			snap.Drifted = true
			slog.Warn("layout drift detected",
				"domain", job.Domain, "distance", dist, "job", job.ID,
			)
		}

		strategies := strategy.ForProfile(attemptProfile, c.extract.EnableVision)
		extractions := strategy.RunAll(ctx, strategies, snap, job.Fields)
		record := c.merger.Merge(job.Fields, extractions)
		outcome.Attempts = append(outcome.Attempts, timing)

		if best == nil || record.Confidence > best.Confidence ||
			(record.Confidence == best.Confidence && len(record.Fields) > len(best.Fields)) {
			best = record
		}

		if record.Confidence >= c.extract.MinOverallConfidence {
			c.finishAccepted(ctx, job, outcome, record, snap, attemptProfile, attempt)
			return outcome
		}

		lastKind = models.ErrKindSelectorNotFound
		slog.Info("attempt below confidence threshold",
			"job", job.ID, "domain", job.Domain,
			"wait", entry.Wait, "attempt", attempt+1,
			"confidence", record.Confidence, "fields", len(record.Fields),
		)
	}

	// Ladder exhausted. Whatever was captured goes out as partial; nothing
	// at all is a failure. Either way the domain's failure counter moves.
	outcome.Retries = len(outcome.Attempts)
	outcome.CompletedAt = time.Now()
	c.counter.RecordFailure(job.Domain)

	if best != nil && len(best.Fields) > 0 {
		outcome.Status = models.StatusPartial
		outcome.Record = best
		return outcome
	}
	outcome.Status = models.StatusFailed
	if lastKind == "" {
		lastKind = models.ErrKindInternal
	}
	outcome.ErrKind = lastKind
	return outcome
}

// finishAccepted fills the outcome for an attempt that met the confidence
// threshold, closes the breaker, records the layout and remembers the flow.
func (c *Controller) finishAccepted(ctx context.Context, job *models.ScrapeJob, outcome *models.JobOutcome, record *models.MergedRecord, snap *strategy.Snapshot, profile *models.DomainProfile, attempt int) {
	outcome.Record = record
	outcome.Retries = attempt + 1
	outcome.CompletedAt = time.Now()
	if record.Partial {
		outcome.Status = models.StatusPartial
	} else {
		outcome.Status = models.StatusSuccess
	}

	// An accepted extraction counts as recovery even when partial: the
	// site answered and yielded data.
	c.counter.RecordSuccess(job.Domain)
	c.reg.RecordLayout(job.Domain, snap.Fingerprint)

	if c.memory != nil {
		flow := models.PastFlow{Domain: job.Domain, FieldSelectors: winningSelectors(record, profile)}
		if err := c.memory.Store(ctx, job.Domain, flow); err != nil {
			slog.Debug("flow memory store failed", "domain", job.Domain, "error", err)
		}
	}
}

// ladder returns the configured ladder, with the browserless static rung
// appended when enabled.
func (c *Controller) ladder() []config.LadderEntry {
	ladder := c.cfg.Ladder
	if len(ladder) == 0 {
		ladder = []config.LadderEntry{{Wait: "load", Timeout: 30 * time.Second}}
	}
	if c.cfg.StaticFallback {
		ladder = append(append([]config.LadderEntry(nil), ladder...), config.LadderEntry{
			Wait:    "static",
			Timeout: 20 * time.Second,
		})
	}
	return ladder
}

func (c *Controller) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << (attempt - 1)
	if c.cfg.BackoffMax > 0 && d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

func (c *Controller) recallFlow(ctx context.Context, domain string) *models.PastFlow {
	flows, err := c.memory.Lookup(ctx, domain)
	if err != nil || len(flows) == 0 {
		if err != nil {
			slog.Debug("flow memory lookup failed", "domain", domain, "error", err)
		}
		return nil
	}
	bestIdx := 0
	for i, f := range flows {
		if f.Score > flows[bestIdx].Score {
			bestIdx = i
		}
	}
	slog.Info("retry biased by remembered flow", "domain", domain, "score", flows[bestIdx].Score)
	return &flows[bestIdx]
}

// biasProfile clones the profile with the flow's selectors tried first.
func biasProfile(p *models.DomainProfile, flow *models.PastFlow) *models.DomainProfile {
	if len(flow.FieldSelectors) == 0 {
		return p
	}
	out := *p
	out.Selectors = make(map[string][]string, len(p.Selectors)+len(flow.FieldSelectors))
	for field, sels := range p.Selectors {
		out.Selectors[field] = sels
	}
	for field, sels := range flow.FieldSelectors {
		out.Selectors[field] = append(append([]string(nil), sels...), out.Selectors[field]...)
	}
	if !out.HasStrategy(models.StrategySelector) {
		out.Strategies = append(append([]string(nil), out.Strategies...), models.StrategySelector)
	}
	return &out
}

// winningSelectors captures the selector tables that fed the fields the
// selector strategy won, so a remembered flow can promote them on a future
// biased retry.
func winningSelectors(record *models.MergedRecord, profile *models.DomainProfile) map[string][]string {
	var out map[string][]string
	for field, ex := range record.Fields {
		if ex.Strategy != models.StrategySelector {
			continue
		}
		sels := profile.Selectors[field]
		if len(sels) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string][]string)
		}
		out[field] = append([]string(nil), sels...)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
