// Package merge combines the extractions of all strategies run for a job
// into a single record with per-field and overall confidence.
package merge

import (
	"sort"

	"github.com/use-agent/harvest/models"
)

// Merger holds the merge policy: trust weights, tiebreak priorities, the
// confidence floor and per-field importance. Safe for concurrent use.
type Merger struct {
	trust    map[string]float64
	priority map[string]int

	// floor drops field values below this confidence; a field whose only
	// candidates sit under the floor stays absent.
	floor float64

	// importance weights per-field confidence in the overall score.
	// Unlisted fields weigh 1.0.
	importance map[string]float64
}

// New creates a Merger. Trust weights and priorities come from the given
// strategies so the policy always matches the set actually run.
func New(trust map[string]float64, priority map[string]int, floor float64, importance map[string]float64) *Merger {
	return &Merger{
		trust:      trust,
		priority:   priority,
		floor:      floor,
		importance: importance,
	}
}

// Merge selects, per requested field, the extraction with the highest
// confidence × trust weight; ties go to the higher-priority strategy.
// Fields with no extraction are absent from the record, never zero-filled,
// and set Partial. The overall confidence is the importance-weighted mean
// of the selected per-field confidences.
func (m *Merger) Merge(fields []string, extractions []models.FieldExtraction) *models.MergedRecord {
	byField := make(map[string][]models.FieldExtraction)
	for _, ex := range extractions {
		if ex.Value == "" {
			continue
		}
		byField[ex.Field] = append(byField[ex.Field], ex)
	}

	record := &models.MergedRecord{Fields: make(map[string]models.FieldExtraction)}
	var confSum, weightSum float64

	for _, field := range fields {
		winner, ok := m.pick(byField[field])
		if !ok {
			record.Partial = true
			record.Missing = append(record.Missing, field)
			continue
		}
		record.Fields[field] = winner
		w := m.fieldImportance(field)
		confSum += winner.Confidence * w
		weightSum += w
	}

	// Extractions for fields outside the requested set ride along; they
	// cost nothing and callers sometimes want them.
	for field, candidates := range byField {
		if _, requested := record.Fields[field]; requested || inSet(fields, field) {
			continue
		}
		if winner, ok := m.pick(candidates); ok {
			record.Fields[field] = winner
		}
	}

	if weightSum > 0 {
		record.Confidence = confSum / weightSum
	}
	sort.Strings(record.Missing)
	return record
}

// pick applies the weighted-max-with-priority-tiebreak policy to one
// field's candidates, honoring the confidence floor.
func (m *Merger) pick(candidates []models.FieldExtraction) (models.FieldExtraction, bool) {
	var best models.FieldExtraction
	found := false
	for _, c := range candidates {
		if c.Confidence < m.floor {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		bs, cs := m.score(best), m.score(c)
		if cs > bs || (cs == bs && m.prio(c.Strategy) > m.prio(best.Strategy)) {
			best = c
		}
	}
	return best, found
}

func (m *Merger) score(ex models.FieldExtraction) float64 {
	return ex.Confidence * m.trustOf(ex.Strategy)
}

func (m *Merger) trustOf(strategy string) float64 {
	if w, ok := m.trust[strategy]; ok {
		return w
	}
	return 0
}

func (m *Merger) prio(strategy string) int {
	return m.priority[strategy]
}

func (m *Merger) fieldImportance(field string) float64 {
	if w, ok := m.importance[field]; ok && w > 0 {
		return w
	}
	return 1.0
}

func inSet(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
