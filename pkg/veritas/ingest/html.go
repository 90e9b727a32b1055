package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"head":     {},
}

// StripHTML returns the visible text of an HTML document, one space between
// text nodes. Unparseable input is returned unchanged.
func StripHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var parts []string
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skippedElements[n.Data]; skip {
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)

	return strings.Join(parts, " ")
}
