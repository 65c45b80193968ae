package strategy

import (
	"context"
	"strings"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/normalize"
)

// Selector confidence starts at the head of a field's fallback chain and
// decays per step: a deep fallback selector is more likely to have matched
// something unintended. A drifted layout damps everything further.
const (
	selectorBaseConfidence = 0.9
	selectorDecayPerStep   = 0.1
	selectorMinConfidence  = 0.5
	driftDamp              = 0.7
)

// Selector extracts fields with the profile's ordered CSS selector lists.
// First non-empty match wins within the strategy.
type Selector struct{}

func (Selector) Name() string         { return models.StrategySelector }
func (Selector) TrustWeight() float64 { return trustSelector }
func (Selector) Priority() int        { return prioSelector }

func (Selector) Extract(ctx context.Context, snap *Snapshot, fields []string) []models.FieldExtraction {
	doc := snap.Doc()
	if doc == nil || snap.Profile == nil {
		return nil
	}

	var out []models.FieldExtraction
	for _, field := range fields {
		if ctx.Err() != nil {
			return out
		}
		selectors := snap.Profile.Selectors[field]
		for i, sel := range selectors {
			match := doc.Find(sel).First()
			if match.Length() == 0 {
				continue
			}

			var value string
			if field == "description" {
				// Keep markup so normalization can render it as markdown.
				if htmlFrag, err := match.Html(); err == nil {
					value = normalize.Richtext(htmlFrag)
				}
			} else if field == "images" {
				value = collectImageSrcs(doc, sel, snap.URL)
			} else {
				value = normalize.Field(field, strings.TrimSpace(match.Text()))
			}
			if value == "" {
				continue
			}

			confidence := selectorBaseConfidence - float64(i)*selectorDecayPerStep
			if confidence < selectorMinConfidence {
				confidence = selectorMinConfidence
			}
			if snap.Drifted {
				confidence *= driftDamp
			}
			out = append(out, models.FieldExtraction{
				Field:      field,
				Value:      value,
				Strategy:   models.StrategySelector,
				Confidence: confidence,
			})
			break
		}
	}
	return out
}
