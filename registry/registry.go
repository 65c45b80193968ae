// Package registry maps target hostnames to extraction profiles. Routing
// never fails: unknown domains get the generic fallback profile, which
// relies on text patterns alone.
package registry

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
)

// Registry holds the known domain profiles and the per-domain layout
// fingerprints. Profiles are registered at startup and read-mostly after.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*models.DomainProfile
	generic  *models.DomainProfile
	layouts  *simhash.Tracker
}

// New creates a Registry preloaded with the builtin profiles.
func New() *Registry {
	r := &Registry{
		profiles: make(map[string]*models.DomainProfile),
		generic:  genericProfile(),
		layouts:  simhash.NewTracker(),
	}
	for _, p := range builtinProfiles() {
		if err := r.Register(p); err != nil {
			// Builtin tables are covered by tests; a bad one is a bug.
			panic(fmt.Sprintf("registry: builtin profile %s: %v", p.Domain, err))
		}
	}
	return r
}

// Register adds or replaces a domain profile. Selector tables are validated
// with cascadia so a broken selector fails at deploy time, not per job.
func (r *Registry) Register(p *models.DomainProfile) error {
	if p.Domain == "" {
		return fmt.Errorf("registry: profile has no domain")
	}
	for field, selectors := range p.Selectors {
		for _, sel := range selectors {
			if _, err := cascadia.Parse(sel); err != nil {
				return fmt.Errorf("registry: %s/%s: bad selector %q: %w", p.Domain, field, sel, err)
			}
		}
	}
	r.mu.Lock()
	r.profiles[p.Domain] = p
	r.mu.Unlock()
	slog.Debug("profile registered", "domain", p.Domain, "strategies", p.Strategies)
	return nil
}

// Route returns the profile for a URL's hostname, or the generic fallback
// when the domain is unregistered. It never fails; an unparseable URL is
// treated as an unknown domain.
func (r *Registry) Route(rawURL string) *models.DomainProfile {
	domain := Hostname(rawURL)
	r.mu.RLock()
	p, ok := r.profiles[domain]
	r.mu.RUnlock()
	if !ok {
		return r.generic
	}
	return p
}

// Hostname extracts the normalized (lowercased, www-stripped) hostname.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// RecordLayout stores the DOM fingerprint of a page that extracted
// successfully for the domain.
func (r *Registry) RecordLayout(domain string, fp uint64) {
	r.layouts.Record(domain, fp)
}

// LayoutDrifted reports whether a page's fingerprint is far from the
// domain's last known-good layout. Selector confidence is damped when it
// is; the site has probably shipped a redesign.
func (r *Registry) LayoutDrifted(domain string, fp uint64) (bool, int) {
	return r.layouts.Drifted(domain, fp)
}

// Domains lists the registered domains, for diagnostics.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profiles))
	for d := range r.profiles {
		out = append(out, d)
	}
	return out
}
