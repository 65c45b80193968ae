package registry

import (
	"regexp"

	"github.com/use-agent/harvest/models"
)

// Generic text patterns that work across most listing sites. Shared by the
// fallback profile and as the pattern table for registered domains.
var genericPatterns = map[string][]*regexp.Regexp{
	"price": {
		regexp.MustCompile(`\$[\d,]+`),
		regexp.MustCompile(`(?i)price:\s*(\$[\d,]+)`),
		regexp.MustCompile(`(?i)listed\s*(?:at|for)?\s*(\$[\d,]+)`),
	},
	"bedrooms": {
		regexp.MustCompile(`(?i)(\d+)\s*(?:bed|bedroom|br)s?\b`),
	},
	"bathrooms": {
		regexp.MustCompile(`(?i)(\d+(?:\.\d)?)\s*(?:bath|bathroom|ba)s?\b`),
	},
	"sqft": {
		regexp.MustCompile(`(?i)([\d,]+)\s*(?:sqft|sq\.?\s*ft|square\s*feet)`),
	},
	"address": {
		regexp.MustCompile(`\d+\s+[A-Z][A-Za-z .]+(?:St|Street|Ave|Avenue|Rd|Road|Dr|Drive|Ln|Lane|Blvd|Ct|Way)\b[^,\n]*,\s*[A-Za-z .]+,\s*[A-Z]{2}\s*\d{5}`),
	},
}

// genericProfile is the fallback for unregistered domains: pattern
// extraction only. No selector tables exist for it, and structured markup
// on an unvetted site is not treated as trustworthy.
func genericProfile() *models.DomainProfile {
	return &models.DomainProfile{
		Domain:     "generic",
		Strategies: []string{models.StrategyPattern},
		Patterns:   genericPatterns,
	}
}

// builtinProfiles are the selector tables for the major listing platforms.
// Each field carries an ordered fallback chain; sites move markup around,
// so later entries trade precision for survival across redesigns.
func builtinProfiles() []*models.DomainProfile {
	all := []string{
		models.StrategyStructured,
		models.StrategySelector,
		models.StrategyVision,
		models.StrategyPattern,
	}
	return []*models.DomainProfile{
		{
			Domain:     "zillow.com",
			Strategies: all,
			Selectors: map[string][]string{
				"price": {
					`[data-testid="price"]`,
					`.ds-price .ds-value`,
					`.price-range-summary`,
					`[class*="price"] [class*="value"]`,
				},
				"address": {
					`[data-testid="bdp-building-address"]`,
					`h1[data-testid="bdp-building-name"]`,
					`.ds-address-container`,
				},
				"bedrooms": {
					`[data-testid="bed-bath-item"]`,
					`.ds-bed-bath-living-area [class*="bed"]`,
					`[class*="bed-bath"] span:first-child`,
				},
				"bathrooms": {
					`.ds-bed-bath-living-area [class*="bath"]`,
					`[class*="bed-bath"] span:nth-child(2)`,
				},
				"sqft": {
					`.ds-bed-bath-living-area [class*="sqft"]`,
					`[class*="sqft"]`,
				},
				"description": {
					`[data-testid="description-text"]`,
					`.ds-overview-section`,
					`.property-description`,
				},
				"images": {
					`.media-carousel img`,
					`[data-testid="photo-carousel"] img`,
				},
			},
			Patterns: genericPatterns,
		},
		{
			Domain:     "realtor.com",
			Strategies: all,
			Selectors: map[string][]string{
				"price": {
					`[data-testid="price-display"]`,
					`.price-display`,
					`.listing-price`,
					`[class*="price"]`,
				},
				"address": {
					`[data-testid="street-address"]`,
					`.street-address`,
					`h1`,
				},
				"bedrooms": {
					`[data-testid="property-beds"]`,
					`.property-beds`,
					`[class*="bed"]`,
				},
				"bathrooms": {
					`[data-testid="property-baths"]`,
					`.property-baths`,
					`[class*="bath"]`,
				},
				"sqft": {
					`[data-testid="property-sqft"]`,
					`.property-sqft`,
					`[class*="sqft"]`,
				},
				"description": {
					`[data-testid="listing-description"]`,
					`.listing-description`,
				},
			},
			Patterns: genericPatterns,
		},
		{
			Domain:     "redfin.com",
			Strategies: all,
			Selectors: map[string][]string{
				"price": {
					`.statsValue`,
					`.price-section .price`,
					`[class*="price-display"]`,
				},
				"address": {
					`.street-address`,
					`.address .value`,
					`h1.address`,
				},
				"bedrooms": {
					`.bed-bath-sqft .value:first-child`,
				},
				"bathrooms": {
					`.bed-bath-sqft .value:nth-child(2)`,
				},
				"sqft": {
					`.bed-bath-sqft .value:last-child`,
				},
				"description": {
					`#marketing-remarks-scroll`,
					`.remarks`,
				},
			},
			Patterns: genericPatterns,
		},
	}
}
