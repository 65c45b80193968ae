package merge

import (
	"math"
	"testing"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/strategy"
)

func newMerger(floor float64, importance map[string]float64) *Merger {
	return New(strategy.Weights(), strategy.Priorities(), floor, importance)
}

func ex(field, value, strat string, conf float64) models.FieldExtraction {
	return models.FieldExtraction{Field: field, Value: value, Strategy: strat, Confidence: conf}
}

func TestMerge_HighestWeightedScoreWins(t *testing.T) {
	m := newMerger(0, nil)
	rec := m.Merge([]string{"price"}, []models.FieldExtraction{
		// pattern: 0.9 × 0.4 = 0.36
		ex("price", "$449,999", models.StrategyPattern, 0.9),
		// selector: 0.7 × 0.8 = 0.56 — wins despite lower raw confidence
		ex("price", "$450,000", models.StrategySelector, 0.7),
	})
	got := rec.Fields["price"]
	if got.Strategy != models.StrategySelector || got.Value != "$450,000" {
		t.Errorf("winner = %s/%q, want selector/$450,000", got.Strategy, got.Value)
	}
}

func TestMerge_TieBrokenByPriority(t *testing.T) {
	m := newMerger(0, nil)
	// Equal weighted scores: structured 0.4×1.0 and selector 0.5×0.8.
	rec := m.Merge([]string{"sqft"}, []models.FieldExtraction{
		ex("sqft", "1800", models.StrategySelector, 0.5),
		ex("sqft", "1820", models.StrategyStructured, 0.4),
	})
	if got := rec.Fields["sqft"]; got.Strategy != models.StrategyStructured {
		t.Errorf("tie winner = %s, want structured", got.Strategy)
	}

	// Order of candidates must not matter.
	rec = m.Merge([]string{"sqft"}, []models.FieldExtraction{
		ex("sqft", "1820", models.StrategyStructured, 0.4),
		ex("sqft", "1800", models.StrategySelector, 0.5),
	})
	if got := rec.Fields["sqft"]; got.Strategy != models.StrategyStructured {
		t.Errorf("tie winner (reversed input) = %s, want structured", got.Strategy)
	}
}

func TestMerge_MissingFieldsAbsentAndPartial(t *testing.T) {
	m := newMerger(0, nil)
	fields := []string{"price", "address", "bedrooms", "bathrooms", "sqft"}
	rec := m.Merge(fields, []models.FieldExtraction{
		ex("price", "$450,000", models.StrategyPattern, 0.6),
		ex("bedrooms", "3", models.StrategyPattern, 0.6),
		ex("sqft", "1820", models.StrategyPattern, 0.6),
	})

	if !rec.Partial {
		t.Error("record with missing requested fields must be partial")
	}
	for _, absent := range []string{"address", "bathrooms"} {
		if rec.Has(absent) {
			t.Errorf("field %q should be absent, not zero-filled", absent)
		}
	}
	if len(rec.Missing) != 2 {
		t.Errorf("Missing = %v, want two entries", rec.Missing)
	}
	// Overall confidence reflects only resolved fields: mean of 3 × 0.6.
	if math.Abs(rec.Confidence-0.6) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.6", rec.Confidence)
	}
}

func TestMerge_ConfidenceFloor(t *testing.T) {
	m := newMerger(0.3, nil)
	rec := m.Merge([]string{"price"}, []models.FieldExtraction{
		ex("price", "$1", models.StrategyPattern, 0.1),
	})
	if rec.Has("price") {
		t.Error("value below the floor must be dropped, field absent")
	}
	if !rec.Partial {
		t.Error("floored-out field leaves the record partial")
	}
}

func TestMerge_FieldImportanceWeighting(t *testing.T) {
	m := newMerger(0, map[string]float64{"price": 3})
	rec := m.Merge([]string{"price", "sqft"}, []models.FieldExtraction{
		ex("price", "$450,000", models.StrategyStructured, 0.9),
		ex("sqft", "1820", models.StrategyPattern, 0.5),
	})
	want := (0.9*3 + 0.5*1) / 4
	if math.Abs(rec.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", rec.Confidence, want)
	}
}

func TestMerge_UnrequestedFieldsRideAlong(t *testing.T) {
	m := newMerger(0, nil)
	rec := m.Merge([]string{"price"}, []models.FieldExtraction{
		ex("price", "$450,000", models.StrategyStructured, 0.95),
		ex("images", "https://cdn.example/1.jpg", models.StrategySelector, 0.9),
	})
	if !rec.Has("images") {
		t.Error("extra extracted field should ride along on the record")
	}
	if rec.Partial {
		t.Error("record with all requested fields present is not partial")
	}
	// Ride-alongs must not move the overall confidence.
	if math.Abs(rec.Confidence-0.95) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.95", rec.Confidence)
	}
}

func TestMerge_NoExtractions(t *testing.T) {
	m := newMerger(0.2, nil)
	rec := m.Merge([]string{"price", "address"}, nil)
	if len(rec.Fields) != 0 || !rec.Partial || rec.Confidence != 0 {
		t.Errorf("empty merge: fields=%d partial=%v conf=%v", len(rec.Fields), rec.Partial, rec.Confidence)
	}
}
