package booking

import (
	"strings"

	"golang.org/x/net/html"
)

// visibleText returns the user-visible text of an HTML fragment: text nodes
// only, with script/style/noscript and similar noise elements dropped. Used
// to tell a rendered booking page from a blank shell.
func visibleText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	var builder strings.Builder
	collectText(doc, &builder)
	return strings.TrimSpace(builder.String())
}

func collectText(n *html.Node, builder *strings.Builder) {
	if n.Type == html.CommentNode {
		return
	}
	if n.Type == html.ElementNode && isNoiseElement(strings.ToLower(n.Data)) {
		return
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if builder.Len() > 0 {
				builder.WriteString(" ")
			}
			builder.WriteString(text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, builder)
	}
}

func isNoiseElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template":
		return true
	}
	return false
}
