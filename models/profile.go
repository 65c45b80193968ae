package models

import "regexp"

// Strategy identifiers. The order of StrategyPriority is the merge
// tiebreak order, highest first.
const (
	StrategyStructured = "structured"
	StrategySelector   = "selector"
	StrategyVision     = "vision"
	StrategyPattern    = "pattern"
)

// DomainProfile describes how a hostname is extracted: which strategies to
// run and the domain-specific selector and pattern tables they consume.
// Profiles are read-mostly; they are built at startup and never mutated by
// jobs, except for the layout fingerprint which the registry updates under
// its own lock.
type DomainProfile struct {
	// Domain is the normalized hostname, or "generic" for the fallback.
	Domain string

	// Strategies lists the strategy identifiers to run for this domain.
	Strategies []string

	// Selectors maps field name to an ordered CSS selector list; earlier
	// entries are preferred, later entries are fallbacks for redesigns.
	Selectors map[string][]string

	// Patterns maps field name to an ordered regex list applied to the
	// page's visible text. First capture group wins when present.
	Patterns map[string][]*regexp.Regexp
}

// Generic reports whether this is the fallback profile.
func (p *DomainProfile) Generic() bool {
	return p.Domain == "generic"
}

// HasStrategy reports whether the profile enables the given strategy.
func (p *DomainProfile) HasStrategy(name string) bool {
	for _, s := range p.Strategies {
		if s == name {
			return true
		}
	}
	return false
}
