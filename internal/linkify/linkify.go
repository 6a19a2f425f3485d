// Package linkify turns URL-shaped substrings of post content into anchor
// elements that open in a new tab.
//
// The URL pattern is intentionally permissive: bare "example.com", ports,
// numeric labels and repeated TLD groups ("a.co.uk") all match. Everything
// outside the generated anchors has its angle brackets escaped, so the only
// markup in the output is the anchors themselves. Rewrite is idempotent:
// an anchor is left alone only when rendering its own text again yields the
// same bytes, so anchors it produced earlier survive and hand-written ones
// are escaped.
package linkify

import (
	"regexp"
	"strings"
)

// urlPattern groups: 1 protocol, 2 ssl, 3 www, 4 subdomain, 5 domain,
// 6 port, 7 tld, 8 path, 9 query. Groups 7 and 8 repeat and only keep their
// last repetition, so newLink slices the full TLD and path by offset.
// The query stops at any Unicode space, not only ASCII ones.
var urlPattern = regexp.MustCompile(
	`(?i)(http(s)?://)?(www\.)?([\w\-]+\.)?([\w\-]+)(:\d)?(\.[a-z]{2,3})+(/[\w\-\.]+)*(\?[^\s\p{Z}\x0b\x{feff}]+)?`,
)

// anchorPattern matches the shape renderAnchor writes. Matches are only
// candidates; see generated.
var anchorPattern = regexp.MustCompile(
	`<a href="(?i:https?://|www\.)[^"<>]*" target="_blank" rel="noopener noreferrer">([^<>]*)</a>`,
)

const (
	groupProtocol = 1
	groupSSL      = 2
	groupWWW      = 3
	groupSubdom   = 4
	groupDomain   = 5
	groupPort     = 6
	groupTLD      = 7
	groupQuery    = 9
)

var (
	textEscaper   = strings.NewReplacer("<", "&lt;", ">", "&gt;")
	textUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">")
	attrEscaper   = strings.NewReplacer("<", "&lt;", ">", "&gt;", `"`, "&#34;")
)

// Link is one URL-shaped match found in a piece of text.
type Link struct {
	// Text is the matched substring exactly as it appears in the input.
	Text string

	// Href is the link target. It equals Text unless the match had neither a
	// protocol nor a leading "www.", in which case "http://" is prepended.
	Href string

	Secure    bool
	WWW       bool
	Subdomain string
	Domain    string
	Port      string
	TLD       string
	Path      string
	Query     string
}

// Extract returns every URL-shaped match in text, in order of appearance.
// Repeated literals are returned once per occurrence.
func Extract(text string) []Link {
	matches := urlPattern.FindAllStringSubmatchIndex(text, -1)
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		links = append(links, newLink(text, m))
	}
	return links
}

// Rewrite replaces every URL-shaped substring of text with an anchor whose
// visible text is the original substring. All occurrences of the same
// literal render identically.
func Rewrite(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	last := 0
	for _, loc := range anchorPattern.FindAllStringSubmatchIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		if !generated(candidate, text[loc[2]:loc[3]]) {
			continue
		}
		rewriteSegment(&b, text[last:loc[0]])
		b.WriteString(candidate)
		last = loc[1]
	}
	rewriteSegment(&b, text[last:])

	return b.String()
}

// generated reports whether anchor is exactly what renderAnchor writes for
// its visible text. The text alone must be one whole URL match.
func generated(anchor, escapedText string) bool {
	text := textUnescaper.Replace(escapedText)
	m := urlPattern.FindStringSubmatchIndex(text)
	if m == nil || m[0] != 0 || m[1] != len(text) {
		return false
	}
	return renderAnchor(newLink(text, m)) == anchor
}

func rewriteSegment(b *strings.Builder, segment string) {
	matches := urlPattern.FindAllStringSubmatchIndex(segment, -1)
	if len(matches) == 0 {
		textEscaper.WriteString(b, segment)
		return
	}

	rendered := make(map[string]string, len(matches))
	last := 0
	for _, m := range matches {
		textEscaper.WriteString(b, segment[last:m[0]])

		literal := segment[m[0]:m[1]]
		anchor, ok := rendered[literal]
		if !ok {
			anchor = renderAnchor(newLink(segment, m))
			rendered[literal] = anchor
		}
		b.WriteString(anchor)
		last = m[1]
	}
	textEscaper.WriteString(b, segment[last:])
}

func renderAnchor(l Link) string {
	return `<a href="` + attrEscaper.Replace(l.Href) +
		`" target="_blank" rel="noopener noreferrer">` +
		textEscaper.Replace(l.Text) + `</a>`
}

func newLink(s string, m []int) Link {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return s[m[2*i]:m[2*i+1]]
	}

	tldStart := m[2*groupDomain+1]
	if m[2*groupPort] >= 0 {
		tldStart = m[2*groupPort+1]
	}
	tldEnd := m[2*groupTLD+1]
	pathEnd := m[1]
	if m[2*groupQuery] >= 0 {
		pathEnd = m[2*groupQuery]
	}

	l := Link{
		Text:      s[m[0]:m[1]],
		Secure:    group(groupSSL) != "",
		WWW:       group(groupWWW) != "",
		Subdomain: strings.TrimSuffix(group(groupSubdom), "."),
		Domain:    group(groupDomain),
		Port:      strings.TrimPrefix(group(groupPort), ":"),
		TLD:       strings.TrimPrefix(s[tldStart:tldEnd], "."),
		Path:      s[tldEnd:pathEnd],
		Query:     strings.TrimPrefix(group(groupQuery), "?"),
	}

	l.Href = l.Text
	if group(groupProtocol) == "" && !l.WWW {
		l.Href = "http://" + l.Text
	}
	return l
}
