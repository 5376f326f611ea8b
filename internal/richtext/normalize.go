// Package richtext turns source post bodies into Bluesky post text and the
// link facets that annotate it.
package richtext

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Normalize strips markup from raw and truncates the result so it holds at
// most budget code points.
func Normalize(raw string, budget int) string {
	return Truncate(StripMarkup(raw), budget)
}

// StripMarkup returns the text content of an HTML fragment with entities
// decoded. Paragraphs are separated by a blank line and <br> becomes a newline.
// Input without markup or entities is returned as is.
func StripMarkup(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return raw
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteByte('\n')
			case "p":
				if b.Len() > 0 {
					b.WriteString("\n\n")
				}
			}
		}
	}
}

// Truncate cuts text that exceeds budget code points, keeping the result at
// exactly budget code points including the trailing Ellipsis.
func Truncate(text string, budget int) string {
	if utf8.RuneCountInString(text) <= budget {
		return text
	}

	keep := budget - utf8.RuneCountInString(Ellipsis)
	if keep < 0 {
		keep = 0
	}

	cut := 0
	for i := 0; i < keep; i++ {
		_, size := utf8.DecodeRuneInString(text[cut:])
		cut += size
	}
	return text[:cut] + Ellipsis
}
