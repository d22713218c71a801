package annotate

import (
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// Occurrence is one match of a phrase: a byte offset into a text node's data.
type Occurrence struct {
	Node   *html.Node
	Offset int
}

// nonContent lists elements whose text is never page prose.
var nonContent = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"textarea": true,
	"rt":       true,
	"rp":       true,
}

// rejected reports whether the subtree rooted at element n must not be searched.
func rejected(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if nonContent[n.Data] || IsSpan(n) {
		return true
	}
	return dom.HasAttribute(n, UIAttr)
}

// TextNodes returns the searchable text nodes under root in document order.
// Whitespace-only nodes are skipped; rejected subtrees are never entered.
func TextNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if strings.TrimSpace(c.Data) != "" {
					out = append(out, c)
				}
			case html.ElementNode, html.DocumentNode:
				if !rejected(c) {
					walk(c)
				}
			}
		}
	}
	if root == nil || rejected(root) {
		return nil
	}
	if root.Type == html.TextNode {
		if strings.TrimSpace(root.Data) != "" {
			out = append(out, root)
		}
		return out
	}
	walk(root)
	return out
}

// Locate finds every occurrence of phrase in the text under root, in document
// order. Matching is exact and case-sensitive, never crosses node boundaries,
// and finds all non-overlapping occurrences within a single text node.
func Locate(root *html.Node, phrase string) ([]Occurrence, error) {
	if strings.TrimSpace(phrase) == "" {
		return nil, ErrInvalidPhrase
	}
	var out []Occurrence
	for _, n := range TextNodes(root) {
		from := 0
		for {
			i := strings.Index(n.Data[from:], phrase)
			if i < 0 {
				break
			}
			out = append(out, Occurrence{Node: n, Offset: from + i})
			from += i + len(phrase)
		}
	}
	return out, nil
}
