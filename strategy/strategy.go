// Package strategy implements the independent field extractors that run per
// page: structured data, CSS selectors, text patterns and vision. Each
// strategy is stateless and safe for concurrent use; a failing strategy
// yields zero extractions and never fails the job.
package strategy

import (
	"context"
	"log/slog"

	"github.com/use-agent/harvest/models"
)

// Strategy is one independent method of extracting fields from a snapshot.
type Strategy interface {
	// Name returns the strategy identifier used in FieldExtraction tags.
	Name() string

	// TrustWeight is the fixed, strategy-level reliability multiplier
	// applied to per-field confidence when merging.
	TrustWeight() float64

	// Priority breaks merge ties; higher wins.
	Priority() int

	// Extract returns zero or more field extractions for the requested
	// fields. It must not return an error: extraction problems are local.
	Extract(ctx context.Context, snap *Snapshot, fields []string) []models.FieldExtraction
}

// Trust weights per strategy class. Structured data is machine-published
// and rarely wrong; patterns match anything that looks right.
const (
	trustStructured = 1.0
	trustSelector   = 0.8
	trustVision     = 0.55
	trustPattern    = 0.4
)

// Priorities for deterministic tie-breaking in the merger.
const (
	prioStructured = 4
	prioSelector   = 3
	prioVision     = 2
	prioPattern    = 1
)

// All returns one instance of every strategy, in priority order.
func All() []Strategy {
	return []Strategy{StructuredData{}, Selector{}, Vision{}, Pattern{}}
}

// Weights returns the trust weight per strategy name, for the merger.
func Weights() map[string]float64 {
	out := make(map[string]float64, 4)
	for _, s := range All() {
		out[s.Name()] = s.TrustWeight()
	}
	return out
}

// Priorities returns the tiebreak priority per strategy name.
func Priorities() map[string]int {
	out := make(map[string]int, 4)
	for _, s := range All() {
		out[s.Name()] = s.Priority()
	}
	return out
}

// ForProfile returns the strategy set a profile enables, in priority order.
// Vision is included only when enabled, independent of the profile.
func ForProfile(p *models.DomainProfile, enableVision bool) []Strategy {
	var out []Strategy
	if p.HasStrategy(models.StrategyStructured) {
		out = append(out, StructuredData{})
	}
	if p.HasStrategy(models.StrategySelector) && len(p.Selectors) > 0 {
		out = append(out, Selector{})
	}
	if enableVision && p.HasStrategy(models.StrategyVision) {
		out = append(out, Vision{})
	}
	if p.HasStrategy(models.StrategyPattern) && len(p.Patterns) > 0 {
		out = append(out, Pattern{})
	}
	return out
}

// RunAll executes every strategy against the snapshot and concatenates the
// results. A panicking strategy is contained and contributes nothing.
func RunAll(ctx context.Context, strategies []Strategy, snap *Snapshot, fields []string) []models.FieldExtraction {
	var all []models.FieldExtraction
	for _, s := range strategies {
		if ctx.Err() != nil {
			return all
		}
		all = append(all, runOne(ctx, s, snap, fields)...)
	}
	return all
}

func runOne(ctx context.Context, s Strategy, snap *Snapshot, fields []string) (out []models.FieldExtraction) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("strategy panicked", "strategy", s.Name(), "url", snap.URL, "panic", r)
			out = nil
		}
	}()
	out = s.Extract(ctx, snap, fields)
	slog.Debug("strategy ran", "strategy", s.Name(), "url", snap.URL, "extractions", len(out))
	return out
}

func wanted(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
