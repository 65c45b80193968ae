// Package normalize cleans raw extracted values into the canonical forms a
// listing record carries: "$450,000" not "Listed at $450,000 (est.)",
// "3" not "3 bds", markdown not markup.
package normalize

import (
	"regexp"
	"strings"
)

var (
	priceRe  = regexp.MustCompile(`\$[\d,]+`)
	digitsRe = regexp.MustCompile(`\d+(?:\.\d)?`)
	sqftRe   = regexp.MustCompile(`[\d,]+`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Field normalizes one field value. Unknown fields are whitespace-squashed
// and returned as-is. An empty return means the raw value carried no usable
// content and the extraction should be dropped.
func Field(field, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	switch field {
	case "price":
		if m := priceRe.FindString(raw); m != "" {
			return m
		}
		// A bare number from structured data is a price too.
		if m := sqftRe.FindString(raw); m != "" && m == raw {
			return "$" + m
		}
		return ""
	case "bedrooms", "bathrooms":
		return digitsRe.FindString(raw)
	case "sqft":
		return strings.ReplaceAll(sqftRe.FindString(raw), ",", "")
	default:
		return spaceRe.ReplaceAllString(raw, " ")
	}
}

// AddressFromTitle pulls an address out of a page title when it looks like
// one. Listing pages routinely title themselves with the street address.
var addressHint = regexp.MustCompile(`(?i)\d+\s+.*\b(?:st|street|ave|avenue|rd|road|dr|drive|ln|lane|blvd|ct|way)\b`)

func AddressFromTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" || !addressHint.MatchString(title) {
		return ""
	}
	// Yank the site-name suffix ("... | Zillow").
	for _, sep := range []string{" | ", " - ", " – "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return strings.TrimSpace(title)
}
