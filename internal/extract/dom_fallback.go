package extract

import (
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// domTextFallback walks the raw DOM with go-shiori/dom helpers and
// concatenates visible text nodes. Used only when both the readability pass
// and the goquery recall pass return nothing (a rare "article is pure
// inline text with no semantic container" case some smaller Brazilian
// publisher templates still use).
func domTextFallback(root *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(dom.TagName(n))
			if tag == "script" || tag == "style" || tag == "nav" || tag == "footer" {
				return
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.TrimSpace(sb.String())
}
