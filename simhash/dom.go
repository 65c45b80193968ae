package simhash

import (
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// FingerprintDOM computes a SimHash of a document's tag structure. Text,
// attributes and ordering within a tag are ignored; only the open-tag
// sequence matters, shingled so that local reordering still registers.
func FingerprintDOM(htmlStr string) uint64 {
	tags := tagSequence(htmlStr)
	if len(tags) == 0 {
		return 0
	}
	if len(tags) < 3 {
		return Fingerprint(strings.Join(tags, " "))
	}

	shingles := make([]string, 0, len(tags)-2)
	for i := 0; i+3 <= len(tags); i++ {
		shingles = append(shingles, tags[i]+"_"+tags[i+1]+"_"+tags[i+2])
	}
	return Fingerprint(strings.Join(shingles, " "))
}

func tagSequence(htmlStr string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			tags = append(tags, string(tn))
		}
	}
}

// driftThreshold is the Hamming distance above which a page no longer
// looks like the layout the selectors were written for.
const driftThreshold = 18

// Tracker remembers the last known-good layout fingerprint per domain.
// Safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	known map[string]uint64
}

// NewTracker creates an empty layout tracker.
func NewTracker() *Tracker {
	return &Tracker{known: make(map[string]uint64)}
}

// Record stores the fingerprint of a page that extracted successfully.
func (t *Tracker) Record(domain string, fp uint64) {
	if fp == 0 {
		return
	}
	t.mu.Lock()
	t.known[domain] = fp
	t.mu.Unlock()
}

// Drifted reports whether fp is far from the domain's recorded layout,
// along with the distance. Unknown domains never count as drifted.
func (t *Tracker) Drifted(domain string, fp uint64) (bool, int) {
	t.mu.RLock()
	known, ok := t.known[domain]
	t.mu.RUnlock()
	if !ok || known == 0 || fp == 0 {
		return false, 0
	}
	d := Distance(known, fp)
	return d > driftThreshold, d
}
