// Package runner bounds job concurrency. A global worker-slot pool caps
// concurrent browser sessions, a per-domain token bucket paces requests to
// any one site, and submissions beyond the queue depth are rejected with
// backpressure instead of piling up.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/recovery"
)

// Executor runs one admitted job to completion. Satisfied by
// *recovery.Controller.
type Executor interface {
	Run(ctx context.Context, job *models.ScrapeJob) *models.JobOutcome
}

type domainLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Runner is the admission and concurrency manager in front of the
// recovery controller.
type Runner struct {
	cfg     config.RunnerConfig
	exec    Executor
	counter *recovery.FailureCounter
	logger  *slog.Logger

	slots   chan struct{}
	active  atomic.Int64
	waiting atomic.Int64

	mu      sync.Mutex
	domains map[string]*domainLimiter
}

// New builds a Runner and starts the idle-limiter eviction loop.
func New(cfg config.RunnerConfig, exec Executor, counter *recovery.FailureCounter, logger *slog.Logger) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	r := &Runner{
		cfg:     cfg,
		exec:    exec,
		counter: counter,
		logger:  logger,
		slots:   make(chan struct{}, cfg.MaxWorkers),
		domains: make(map[string]*domainLimiter),
	}
	go r.evictLoop()
	return r
}

// Submit admits a job and runs it to completion, blocking the caller.
// Validation failures, open circuit breakers and backpressure rejections
// return an error before any attempt is made; every admitted job returns
// a JobOutcome.
func (r *Runner) Submit(ctx context.Context, job *models.ScrapeJob) (*models.JobOutcome, error) {
	if err := job.Normalize(); err != nil {
		return nil, err
	}
	if err := r.counter.Allow(job.Domain); err != nil {
		return nil, err
	}

	// Backpressure: reject instead of queueing unboundedly.
	if int(r.waiting.Load()) >= r.cfg.QueueDepth {
		return nil, models.NewExtractError(models.ErrKindRateLimitExceeded,
			fmt.Sprintf("queue full (%d waiting), try again later", r.cfg.QueueDepth), nil)
	}

	r.waiting.Add(1)
	select {
	case r.slots <- struct{}{}:
		r.waiting.Add(-1)
	case <-ctx.Done():
		r.waiting.Add(-1)
		return nil, models.NewExtractError(models.ErrKindNavigationTimeout, "gave up waiting for a worker slot", ctx.Err())
	}
	r.active.Add(1)
	defer func() {
		r.active.Add(-1)
		<-r.slots
	}()

	// Per-domain pacing happens inside the slot so a throttled domain
	// cannot starve the queue accounting.
	if err := r.domainLimiter(job.Domain).Wait(ctx); err != nil {
		return nil, models.NewExtractError(models.ErrKindNavigationTimeout, "domain pacing interrupted", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if !job.Deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, job.Deadline)
	} else if r.cfg.DefaultJobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.DefaultJobTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	r.logger.Info("job admitted",
		"job_id", job.ID,
		"domain", job.Domain,
		"active", r.active.Load())
	return r.exec.Run(runCtx, job), nil
}

// Stats snapshots the pool for the health endpoint.
func (r *Runner) Stats() models.RunnerStats {
	return models.RunnerStats{
		MaxWorkers: r.cfg.MaxWorkers,
		Active:     int(r.active.Load()),
		Waiting:    int(r.waiting.Load()),
		QueueDepth: r.cfg.QueueDepth,
	}
}

func (r *Runner) domainLimiter(domain string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.domains[domain]
	if !ok {
		entry = &domainLimiter{
			limiter: rate.NewLimiter(rate.Limit(r.cfg.DomainRPS), r.cfg.DomainBurst),
		}
		r.domains[domain] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// evictLoop drops limiters for domains not seen in the last hour.
func (r *Runner) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-1 * time.Hour)
		r.mu.Lock()
		for domain, entry := range r.domains {
			if entry.lastSeen.Before(cutoff) {
				delete(r.domains, domain)
			}
		}
		r.mu.Unlock()
	}
}
