package strategy

import (
	"context"
	"regexp"
	"sort"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/normalize"
)

// Vision confidence is capped below selector level: geometry says where a
// value probably is, not what it means.
const (
	visionBaseConfidence = 0.4
	visionMaxConfidence  = 0.65
)

var (
	visionPriceRe   = regexp.MustCompile(`\$[\d,]+`)
	visionAddressRe = regexp.MustCompile(`\d+\s+\S+.*\b(?:St|Street|Ave|Avenue|Rd|Road|Dr|Drive|Ln|Lane|Blvd|Ct|Way)\b`)
	visionBedsRe    = regexp.MustCompile(`(?i)(\d+)\s*(?:bed|bd)s?\b`)
	visionBathsRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d)?)\s*(?:bath|ba)s?\b`)
	visionSqftRe    = regexp.MustCompile(`(?i)([\d,]+)\s*(?:sqft|sq\.?\s*ft)`)
)

// Vision scores rendered text regions by visual prominence: listing sites
// put the price and address in the largest type near the top of the page.
// It only works on live browser snapshots that carry region geometry, and
// is the expensive last resort when DOM strategies find nothing.
type Vision struct{}

func (Vision) Name() string         { return models.StrategyVision }
func (Vision) TrustWeight() float64 { return trustVision }
func (Vision) Priority() int        { return prioVision }

func (Vision) Extract(ctx context.Context, snap *Snapshot, fields []string) []models.FieldExtraction {
	if len(snap.Regions) == 0 {
		return nil
	}

	// Most prominent first: font size dominates, higher on the page wins
	// among equals.
	regions := append([]TextRegion(nil), snap.Regions...)
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].FontSize != regions[j].FontSize {
			return regions[i].FontSize > regions[j].FontSize
		}
		return regions[i].Y < regions[j].Y
	})

	matchers := map[string]*regexp.Regexp{
		"price":     visionPriceRe,
		"address":   visionAddressRe,
		"bedrooms":  visionBedsRe,
		"bathrooms": visionBathsRe,
		"sqft":      visionSqftRe,
	}

	maxFont := regions[0].FontSize
	var out []models.FieldExtraction
	for _, field := range fields {
		if ctx.Err() != nil {
			return out
		}
		re, ok := matchers[field]
		if !ok {
			continue
		}
		for _, region := range regions {
			m := re.FindStringSubmatch(region.Text)
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
			out = append(out, models.FieldExtraction{
				Field:      field,
				Value:      value,
				Strategy:   models.StrategyVision,
				Confidence: visionConfidence(region, maxFont),
			})
			break
		}
	}
	return out
}

// visionConfidence scales with the region's font size relative to the
// page's largest text.
func visionConfidence(region TextRegion, maxFont float64) float64 {
	if maxFont <= 0 {
		return visionBaseConfidence
	}
	c := visionBaseConfidence + (visionMaxConfidence-visionBaseConfidence)*(region.FontSize/maxFont)
	if c > visionMaxConfidence {
		c = visionMaxConfidence
	}
	return c
}
