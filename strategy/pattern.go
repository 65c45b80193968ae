package strategy

import (
	"context"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/normalize"
)

// Pattern confidences. The head pattern of a field's table is written for
// the common phrasing; later entries are looser.
const (
	patternPrimaryConfidence  = 0.6
	patternFallbackConfidence = 0.45
)

// Pattern extracts fields by regex over the page's visible text. It is the
// universal fallback: it needs no selectors and survives any redesign that
// keeps the words on the page.
type Pattern struct{}

func (Pattern) Name() string         { return models.StrategyPattern }
func (Pattern) TrustWeight() float64 { return trustPattern }
func (Pattern) Priority() int        { return prioPattern }

func (Pattern) Extract(ctx context.Context, snap *Snapshot, fields []string) []models.FieldExtraction {
	if snap.Profile == nil {
		return nil
	}
	// Prefer readability's main content: whole-page text matches nav
	// chrome, "similar homes" widgets and footer boilerplate.
	text := snap.MainText
	if text == "" {
		text = snap.Text
	}
	if text == "" {
		return nil
	}

	var out []models.FieldExtraction
	for _, field := range fields {
		if ctx.Err() != nil {
			return out
		}
		matched := false
		for i, re := range snap.Profile.Patterns[field] {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			raw := m[0]
			if len(m) > 1 && m[1] != "" {
				raw = m[1]
			}
			value := normalize.Field(field, raw)
			if value == "" {
				continue
			}
			confidence := patternPrimaryConfidence
			if i > 0 {
				confidence = patternFallbackConfidence
			}
			out = append(out, models.FieldExtraction{
				Field:      field,
				Value:      value,
				Strategy:   models.StrategyPattern,
				Confidence: confidence,
			})
			matched = true
			break
		}

		// Listing pages routinely title themselves with the street
		// address; use it when the text patterns come up empty.
		if field == "address" && !matched {
			if addr := normalize.AddressFromTitle(snap.Title); addr != "" {
				out = append(out, models.FieldExtraction{
					Field:      field,
					Value:      addr,
					Strategy:   models.StrategyPattern,
					Confidence: patternFallbackConfidence,
				})
			}
		}
	}
	return out
}
