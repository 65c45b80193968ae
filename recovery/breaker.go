// Package recovery drives a job across the page-load ladder, retrying with
// backoff, and trips a per-domain circuit breaker after repeated failure.
package recovery

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

// FailureCounter tracks consecutive extraction failures per domain and the
// cooldown window that opens when a domain keeps failing. State is guarded
// per domain; unrelated domains never serialize on each other.
type FailureCounter struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	domains map[string]*domainState
}

type domainState struct {
	mu            sync.Mutex
	consecutive   int
	cooldownUntil time.Time
}

// NewFailureCounter creates a counter that opens a domain's breaker after
// threshold consecutive failures, for the given cooldown window.
func NewFailureCounter(threshold int, cooldown time.Duration) *FailureCounter {
	if threshold < 1 {
		threshold = 1
	}
	return &FailureCounter{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		domains:   make(map[string]*domainState),
	}
}

func (f *FailureCounter) state(domain string) *domainState {
	f.mu.RLock()
	s, ok := f.domains[domain]
	f.mu.RUnlock()
	if ok {
		return s
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.domains[domain]; !ok {
		s = &domainState{}
		f.domains[domain] = s
	}
	return s
}

// Allow reports whether jobs for the domain may run. When the breaker is
// open it returns a DOMAIN_COOLDOWN error carrying the remaining window.
func (f *FailureCounter) Allow(domain string) error {
	s := f.state(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	if remaining := s.cooldownUntil.Sub(f.now()); remaining > 0 {
		return models.NewExtractError(
			models.ErrKindDomainCooldown,
			fmt.Sprintf("domain %s cooling down for %s after %d consecutive failures",
				domain, remaining.Round(time.Second), s.consecutive),
			nil,
		)
	}
	return nil
}

// RecordFailure increments the domain's consecutive-failure count and, at
// the threshold, opens (or extends) the cooldown window. The cooldown-until
// timestamp never moves backwards while failures continue.
func (f *FailureCounter) RecordFailure(domain string) {
	s := f.state(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive++
	if s.consecutive >= f.threshold {
		until := f.now().Add(f.cooldown)
		if until.After(s.cooldownUntil) {
			s.cooldownUntil = until
		}
		slog.Warn("domain circuit breaker open",
			"domain", domain,
			"consecutive_failures", s.consecutive,
			"cooldown_until", s.cooldownUntil,
		)
	}
}

// RecordSuccess resets the domain: one success closes the breaker and
// zeroes the consecutive-failure count.
func (f *FailureCounter) RecordSuccess(domain string) {
	s := f.state(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutive > 0 {
		slog.Info("domain recovered", "domain", domain, "previous_failures", s.consecutive)
	}
	s.consecutive = 0
	s.cooldownUntil = time.Time{}
}

// Failures returns the domain's current consecutive-failure count.
func (f *FailureCounter) Failures(domain string) int {
	s := f.state(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutive
}

// Open returns the domains whose breakers are currently open, with their
// consecutive-failure counts. Used by the health endpoint.
func (f *FailureCounter) Open() map[string]int {
	now := f.now()
	out := map[string]int{}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for domain, s := range f.domains {
		s.mu.Lock()
		if s.cooldownUntil.After(now) {
			out[domain] = s.consecutive
		}
		s.mu.Unlock()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
