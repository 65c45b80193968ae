package normalize

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// The converter is goroutine-safe and configuration is fixed, so one
// instance serves every job.
var (
	mdOnce sync.Once
	mdConv *converter.Converter
)

func markdownConverter() *converter.Converter {
	mdOnce.Do(func() {
		mdConv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
	})
	return mdConv
}

// Richtext converts an HTML fragment (a listing description, typically) to
// markdown. When conversion fails the tag-stripped plain text is better
// than nothing, and an empty string means the fragment had no content.
func Richtext(htmlFrag string) string {
	htmlFrag = strings.TrimSpace(htmlFrag)
	if htmlFrag == "" {
		return ""
	}
	md, err := markdownConverter().ConvertString(htmlFrag)
	if err != nil {
		return Field("description", stripTags(htmlFrag))
	}
	return strings.TrimSpace(md)
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
