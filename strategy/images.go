package strategy

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxImages = 10

// collectImageSrcs resolves up to maxImages src attributes matched by the
// selector against the page URL. Data URIs are skipped.
func collectImageSrcs(doc *goquery.Document, sel, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}

	var urls []string
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		if ref, err := url.Parse(src); err == nil {
			urls = append(urls, base.ResolveReference(ref).String())
		}
		return len(urls) < maxImages
	})
	return strings.Join(urls, " ")
}
