package strategy

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
)

// TextRegion is a piece of rendered text with its layout geometry, captured
// by the browser manager for the vision strategy.
type TextRegion struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"font_size"`
}

// Snapshot is everything strategies may look at for one page, captured once
// per attempt. It is local to the attempt and needs no locking.
type Snapshot struct {
	URL    string
	Domain string
	Title  string
	HTML   string

	// Text is the page's visible text.
	Text string

	// MainText is the readability-extracted main content, empty when
	// extraction found nothing. Patterns prefer it over Text to avoid
	// matching nav chrome and footer noise.
	MainText string

	// Regions are rendered text regions; empty for static fetches.
	Regions []TextRegion

	// Fingerprint is the SimHash of the DOM structure.
	Fingerprint uint64

	// Drifted is set when the fingerprint is far from the domain's last
	// known-good layout. Selector confidence is damped when true.
	Drifted bool

	// Profile is the routed domain profile for this page.
	Profile *models.DomainProfile

	doc *goquery.Document
}

// NewSnapshot builds a Snapshot from raw page state: parses the DOM,
// derives visible text, runs readability and fingerprints the layout.
// A snapshot is still usable when parsing fails; strategies that need the
// missing piece simply produce nothing.
func NewSnapshot(pageURL, html, title string, regions []TextRegion, profile *models.DomainProfile) *Snapshot {
	snap := &Snapshot{
		URL:         pageURL,
		Title:       title,
		HTML:        html,
		Regions:     regions,
		Profile:     profile,
		Fingerprint: simhash.FingerprintDOM(html),
	}
	if u, err := url.Parse(pageURL); err == nil {
		snap.Domain = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		snap.doc = doc
		body := doc.Find("body")
		body.Find("script, style, noscript").Remove()
		snap.Text = squashSpace(body.Text())
	}

	if article, err := readability.FromReader(strings.NewReader(html), mustParse(pageURL)); err == nil {
		snap.MainText = squashSpace(article.TextContent)
	}
	return snap
}

// Doc returns the parsed document, or nil when the HTML was unparseable.
func (s *Snapshot) Doc() *goquery.Document {
	return s.doc
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
