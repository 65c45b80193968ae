package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/normalize"
)

// structuredConfidence applies to every field sourced from JSON-LD. The
// publisher wrote the value into machine-readable markup on purpose.
const structuredConfidence = 0.95

// listingTypes are the schema.org @type values treated as listing-bearing.
var listingTypes = map[string]bool{
	"RealEstateListing":      true,
	"Product":                true,
	"Place":                  true,
	"House":                  true,
	"Apartment":              true,
	"SingleFamilyResidence":  true,
	"Residence":              true,
	"Offer":                  true,
	"Accommodation":          true,
	"RealEstateAgentListing": true,
}

// StructuredData extracts fields from embedded schema.org JSON-LD blocks.
type StructuredData struct{}

func (StructuredData) Name() string         { return models.StrategyStructured }
func (StructuredData) TrustWeight() float64 { return trustStructured }
func (StructuredData) Priority() int        { return prioStructured }

func (StructuredData) Extract(ctx context.Context, snap *Snapshot, fields []string) []models.FieldExtraction {
	doc := snap.Doc()
	if doc == nil {
		return nil
	}

	values := map[string]string{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			// Present but malformed: a parse mismatch, local to this block.
			slog.Debug("malformed JSON-LD block", "url", snap.URL, "error", err)
			return true
		}
		collectListingValues(payload, values)
		return ctx.Err() == nil
	})

	var out []models.FieldExtraction
	for field, value := range values {
		if !wanted(fields, field) {
			continue
		}
		cleaned := normalize.Field(field, value)
		if cleaned == "" {
			continue
		}
		out = append(out, models.FieldExtraction{
			Field:      field,
			Value:      cleaned,
			Strategy:   models.StrategyStructured,
			Confidence: structuredConfidence,
		})
	}
	return out
}

// collectListingValues walks a decoded JSON-LD payload (object, @graph, or
// array) and fills values for listing-typed nodes. Existing entries win:
// the first listing node on the page is the subject of the page.
func collectListingValues(payload any, values map[string]string) {
	switch node := payload.(type) {
	case []any:
		for _, item := range node {
			collectListingValues(item, values)
		}
	case map[string]any:
		if graph, ok := node["@graph"].([]any); ok {
			for _, item := range graph {
				collectListingValues(item, values)
			}
		}
		if !isListingNode(node) {
			return
		}
		setIfEmpty(values, "price", priceOf(node))
		setIfEmpty(values, "address", addressOf(node))
		setIfEmpty(values, "bedrooms", firstString(node, "numberOfBedrooms", "numberOfRooms"))
		setIfEmpty(values, "bathrooms", firstString(node, "numberOfBathroomsTotal", "numberOfFullBathrooms"))
		setIfEmpty(values, "sqft", floorSizeOf(node))
		setIfEmpty(values, "description", stringOf(node["description"]))
		setIfEmpty(values, "images", imagesOf(node))
	}
}

func isListingNode(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return listingTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && listingTypes[s] {
				return true
			}
		}
	}
	return false
}

func priceOf(node map[string]any) string {
	offers := node["offers"]
	switch o := offers.(type) {
	case map[string]any:
		if p := stringOf(o["price"]); p != "" {
			return p
		}
		if spec, ok := o["priceSpecification"].(map[string]any); ok {
			return stringOf(spec["price"])
		}
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				if p := stringOf(m["price"]); p != "" {
					return p
				}
			}
		}
	}
	return stringOf(node["price"])
}

func addressOf(node map[string]any) string {
	addr, ok := node["address"].(map[string]any)
	if !ok {
		return stringOf(node["address"])
	}
	parts := []string{
		stringOf(addr["streetAddress"]),
		stringOf(addr["addressLocality"]),
		stringOf(addr["addressRegion"]),
		stringOf(addr["postalCode"]),
	}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func floorSizeOf(node map[string]any) string {
	switch fs := node["floorSize"].(type) {
	case map[string]any:
		return stringOf(fs["value"])
	default:
		return stringOf(fs)
	}
}

func imagesOf(node map[string]any) string {
	switch img := node["image"].(type) {
	case string:
		return img
	case []any:
		var urls []string
		for _, item := range img {
			if s, ok := item.(string); ok {
				urls = append(urls, s)
			}
			if len(urls) == 10 {
				break
			}
		}
		return strings.Join(urls, " ")
	}
	return ""
}

func firstString(node map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(node[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case json.Number:
		return s.String()
	}
	return ""
}

func setIfEmpty(values map[string]string, field, value string) {
	if value == "" {
		return
	}
	if _, exists := values[field]; !exists {
		values[field] = value
	}
}
