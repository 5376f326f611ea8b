package richtext

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

var (
	urlRe     = regexp.MustCompile(`https?://[^\s<>"]+`)
	domainRe  = regexp.MustCompile(`(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}`)
	mentionRe = regexp.MustCompile(`@[a-zA-Z0-9_]+(?:@[a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)+)?`)
)

// trailingPunct is stripped from the end of detected URLs.
const trailingPunct = ".,;!?"

// MentionIndex maps an account handle as written after the @ ("alice" or
// "alice@example.social") to that account's public profile URI. An empty URI
// means the account is known but has no derivable profile location.
type MentionIndex map[string]string

func (idx MentionIndex) resolve(handle string) (string, bool) {
	uri, ok := idx[handle]
	if !ok {
		uri, ok = idx[strings.ToLower(handle)]
	}
	if !ok || uri == "" {
		return "", false
	}
	return uri, true
}

// ExtractFacets finds explicit URLs, bare domains and resolvable mentions in
// text and returns one link facet per entity, in that order. Ranges are byte
// offsets into text. The result is nil when nothing is found.
func ExtractFacets(text string, mentions MentionIndex) []lexicon.Facet {
	urlFacets, rawURLs := detectURLs(text)

	var facets []lexicon.Facet
	facets = append(facets, urlFacets...)
	facets = append(facets, detectDomains(text, rawURLs)...)
	facets = append(facets, detectMentions(text, mentions)...)
	return facets
}

func detectURLs(text string) ([]lexicon.Facet, []string) {
	var (
		facets []lexicon.Facet
		raws   []string
	)
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		raws = append(raws, raw)

		cleaned := cleanURL(raw)
		if !hasHost(cleaned) {
			continue
		}
		// loc[0] is already the byte length of the preceding text.
		start := loc[0]
		end := start + len(cleaned)
		facets = append(facets, lexicon.NewLinkFacet(start, end, cleaned))
	}
	return facets, raws
}

// cleanURL drops trailing sentence punctuation and a closing parenthesis that
// has no opening partner in the URL.
func cleanURL(raw string) string {
	s := raw
	for {
		next := strings.TrimRight(s, trailingPunct)
		if strings.HasSuffix(next, ")") && !strings.Contains(next, "(") {
			next = next[:len(next)-1]
		}
		if next == s {
			return s
		}
		s = next
	}
}

func hasHost(u string) bool {
	i := strings.Index(u, "://")
	return i >= 0 && len(u) > i+3
}

func detectDomains(text string, rawURLs []string) []lexicon.Facet {
	var facets []lexicon.Facet
	for _, loc := range domainRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		domain := text[start:end]

		if !domainBoundaryOK(text, start, end) {
			continue
		}
		if insideAny(domain, rawURLs) {
			continue
		}
		if !validDomain(domain) {
			continue
		}
		facets = append(facets, lexicon.NewLinkFacet(start, end, "https://"+domain))
	}
	return facets
}

func domainBoundaryOK(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) || prev == '-' || prev == '.' || prev == '@' {
			return false
		}
		if strings.HasSuffix(text[:start], "://") {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) || next == '-' {
			return false
		}
	}
	return true
}

func insideAny(s string, haystacks []string) bool {
	for _, h := range haystacks {
		if strings.Contains(h, s) {
			return true
		}
	}
	return false
}

// validDomain requires at least one dot and a 2-6 letter top-level label.
func validDomain(domain string) bool {
	i := strings.LastIndexByte(domain, '.')
	if i <= 0 {
		return false
	}
	tld := domain[i+1:]
	if len(tld) < 2 || len(tld) > 6 {
		return false
	}
	for _, r := range tld {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
			return false
		}
	}
	return true
}

func detectMentions(text string, mentions MentionIndex) []lexicon.Facet {
	if len(mentions) == 0 {
		return nil
	}

	var facets []lexicon.Facet
	for _, loc := range mentionRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			if isWordRune(prev) || prev == '@' || prev == '/' {
				continue
			}
		}

		uri, ok := mentions.resolve(text[start+1 : end])
		if !ok {
			continue
		}
		facets = append(facets, lexicon.NewLinkFacet(start, end, uri))
	}
	return facets
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
