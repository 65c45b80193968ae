package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/registry"
)

const zillowURL = "https://www.zillow.com/homedetails/123-main-st/456_zpid/"

// listingHTML is a cut-down listing page carrying all three DOM-visible
// sources: JSON-LD, profile-matching selectors, and pattern-matchable text.
const listingHTML = `<!DOCTYPE html>
<html><head><title>123 Main St, Oakland, CA 94601 | Zillow</title>
<script type="application/ld+json">
{
  "@type": "RealEstateListing",
  "offers": {"price": 450000},
  "address": {"streetAddress": "123 Main St", "addressLocality": "Oakland", "addressRegion": "CA", "postalCode": "94601"},
  "numberOfBedrooms": 3,
  "numberOfBathroomsTotal": 2,
  "floorSize": {"value": 1820},
  "description": "Charming bungalow near the park."
}
</script>
<script type="application/ld+json">{not even json</script>
</head>
<body>
<span data-testid="price">$450,000</span>
<h1 data-testid="bdp-building-address">123 Main St, Oakland, CA 94601</h1>
<div data-testid="description-text"><p>Charming <strong>bungalow</strong> near the park.</p></div>
<article><p>Gorgeous home listed at $450,000 with 3 beds, 2 baths and 1,820 sqft of space.
This charming bungalow sits near the park and has been lovingly maintained for years,
with an updated kitchen, refinished floors and a sunny backyard perfect for entertaining.</p></article>
</body></html>`

func zillowSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	profile := registry.New().Route(zillowURL)
	snap := NewSnapshot(zillowURL, listingHTML, "123 Main St, Oakland, CA 94601 | Zillow", nil, profile)
	if snap.Doc() == nil {
		t.Fatal("snapshot failed to parse HTML")
	}
	return snap
}

var allFields = []string{"price", "address", "bedrooms", "bathrooms", "sqft", "description"}

func find(exs []models.FieldExtraction, field string) (models.FieldExtraction, bool) {
	for _, ex := range exs {
		if ex.Field == field {
			return ex, true
		}
	}
	return models.FieldExtraction{}, false
}

func TestStructuredData_Extract(t *testing.T) {
	exs := StructuredData{}.Extract(context.Background(), zillowSnapshot(t), allFields)

	tests := []struct {
		field, want string
	}{
		{"price", "$450000"},
		{"address", "123 Main St, Oakland, CA, 94601"},
		{"bedrooms", "3"},
		{"bathrooms", "2"},
		{"sqft", "1820"},
	}
	for _, tt := range tests {
		ex, ok := find(exs, tt.field)
		if !ok {
			t.Errorf("field %q not extracted", tt.field)
			continue
		}
		if ex.Value != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, ex.Value, tt.want)
		}
		if ex.Confidence < 0.9 {
			t.Errorf("%s confidence = %v, want >= 0.9", tt.field, ex.Confidence)
		}
		if ex.Strategy != models.StrategyStructured {
			t.Errorf("%s strategy = %q", tt.field, ex.Strategy)
		}
	}
}

func TestStructuredData_MalformedBlockIsLocal(t *testing.T) {
	html := `<html><head><script type="application/ld+json">{broken</script></head><body></body></html>`
	snap := NewSnapshot(zillowURL, html, "", nil, registry.New().Route(zillowURL))
	if exs := (StructuredData{}).Extract(context.Background(), snap, allFields); len(exs) != 0 {
		t.Errorf("malformed JSON-LD produced %d extractions, want 0", len(exs))
	}
}

func TestSelector_FirstMatchWinsWithDecay(t *testing.T) {
	snap := zillowSnapshot(t)
	exs := Selector{}.Extract(context.Background(), snap, allFields)

	price, ok := find(exs, "price")
	if !ok {
		t.Fatal("price not extracted")
	}
	if price.Value != "$450,000" {
		t.Errorf("price = %q", price.Value)
	}
	// Head of the fallback chain matched: full base confidence.
	if price.Confidence != 0.9 {
		t.Errorf("price confidence = %v, want 0.9", price.Confidence)
	}

	desc, ok := find(exs, "description")
	if !ok {
		t.Fatal("description not extracted")
	}
	if want := "**bungalow**"; !strings.Contains(desc.Value, want) {
		t.Errorf("description %q should be markdown containing %q", desc.Value, want)
	}
}

func TestSelector_DriftDampsConfidence(t *testing.T) {
	snap := zillowSnapshot(t)
	snap.Drifted = true
	exs := Selector{}.Extract(context.Background(), snap, []string{"price"})
	price, ok := find(exs, "price")
	if !ok {
		t.Fatal("price not extracted")
	}
	if price.Confidence >= 0.9 {
		t.Errorf("drifted confidence = %v, want damped below 0.9", price.Confidence)
	}
}

func TestPattern_ExtractsFromText(t *testing.T) {
	exs := Pattern{}.Extract(context.Background(), zillowSnapshot(t), allFields)

	tests := []struct {
		field, want string
	}{
		{"price", "$450,000"},
		{"bedrooms", "3"},
		{"bathrooms", "2"},
		{"sqft", "1820"},
	}
	for _, tt := range tests {
		ex, ok := find(exs, tt.field)
		if !ok {
			t.Errorf("field %q not extracted", tt.field)
			continue
		}
		if ex.Value != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, ex.Value, tt.want)
		}
		if ex.Confidence > 0.6 {
			t.Errorf("%s confidence = %v, pattern must stay low-trust", tt.field, ex.Confidence)
		}
	}
}

func TestPattern_AddressFallsBackToTitle(t *testing.T) {
	html := `<html><head><title>456 Oak Ave, Berkeley, CA 94704 | Zillow</title></head>
<body><p>Gorgeous home listed at $450,000, lovingly maintained with an updated
kitchen, refinished floors and a sunny backyard perfect for entertaining.</p></body></html>`
	snap := NewSnapshot(zillowURL, html, "456 Oak Ave, Berkeley, CA 94704 | Zillow", nil, registry.New().Route(zillowURL))

	exs := Pattern{}.Extract(context.Background(), snap, []string{"address"})
	addr, ok := find(exs, "address")
	if !ok {
		t.Fatal("address not recovered from title")
	}
	if addr.Value != "456 Oak Ave, Berkeley, CA 94704" {
		t.Errorf("address = %q, want the title without the site suffix", addr.Value)
	}
	if addr.Confidence != 0.45 {
		t.Errorf("title-derived address confidence = %v, want the fallback 0.45", addr.Confidence)
	}
}

func TestVision_ScoresProminence(t *testing.T) {
	snap := zillowSnapshot(t)
	snap.Regions = []TextRegion{
		{Text: "Similar homes from $300,000", Y: 2400, FontSize: 12},
		{Text: "$450,000", Y: 120, FontSize: 36},
		{Text: "3 bd 2 ba 1,820 sqft", Y: 160, FontSize: 18},
	}
	exs := Vision{}.Extract(context.Background(), snap, []string{"price", "bedrooms", "sqft"})

	price, ok := find(exs, "price")
	if !ok {
		t.Fatal("price not extracted")
	}
	if price.Value != "$450,000" {
		t.Errorf("vision picked %q, want the prominent $450,000", price.Value)
	}
	if price.Confidence > 0.65 {
		t.Errorf("vision confidence = %v, want <= 0.65", price.Confidence)
	}
	if sqft, ok := find(exs, "sqft"); !ok || sqft.Value != "1820" {
		t.Errorf("sqft = %v", sqft)
	}
}

func TestVision_NoRegionsNoOutput(t *testing.T) {
	if exs := (Vision{}).Extract(context.Background(), zillowSnapshot(t), allFields); len(exs) != 0 {
		t.Errorf("vision without regions produced %d extractions", len(exs))
	}
}

type panicky struct{}

func (panicky) Name() string         { return "panicky" }
func (panicky) TrustWeight() float64 { return 1 }
func (panicky) Priority() int        { return 9 }
func (panicky) Extract(context.Context, *Snapshot, []string) []models.FieldExtraction {
	panic("strategy bug")
}

func TestRunAll_ContainsStrategyFailure(t *testing.T) {
	snap := zillowSnapshot(t)
	exs := RunAll(context.Background(), []Strategy{panicky{}, Pattern{}}, snap, []string{"price"})
	if _, ok := find(exs, "price"); !ok {
		t.Error("pattern output lost after another strategy panicked")
	}
	for _, ex := range exs {
		if ex.Strategy == "panicky" {
			t.Error("panicking strategy contributed extractions")
		}
	}
}

func TestForProfile(t *testing.T) {
	reg := registry.New()

	full := ForProfile(reg.Route(zillowURL), true)
	if len(full) != 4 {
		t.Errorf("zillow with vision: %d strategies, want 4", len(full))
	}

	noVision := ForProfile(reg.Route(zillowURL), false)
	for _, s := range noVision {
		if s.Name() == models.StrategyVision {
			t.Error("vision enabled despite config flag off")
		}
	}

	generic := ForProfile(reg.Route("https://unknown.example/x"), true)
	for _, s := range generic {
		if s.Name() == models.StrategySelector {
			t.Error("generic profile must not run the selector strategy")
		}
	}
}
