package annotate

import (
	"github.com/go-shiori/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Clear restores every annotation span to plain text, drops its hover
// listener, merges the text fragments left behind and hides the tooltip.
// Calling it with nothing annotated changes nothing. It returns the number of
// spans removed from the document.
func (e *Engine) Clear() int {
	e.tooltip.Remove()

	var parents []*html.Node
	seen := make(map[*html.Node]bool)
	removed := 0
	for _, span := range dom.QuerySelectorAll(e.doc, "span."+SpanClass) {
		parent := span.Parent
		delete(e.listeners, span)
		if parent == nil {
			continue
		}
		parent.InsertBefore(dom.CreateTextNode(dom.TextContent(span)), span)
		parent.RemoveChild(span)
		removed++
		if !seen[parent] {
			seen[parent] = true
			parents = append(parents, parent)
		}
	}

	// Anything still registered was detached from the document by someone else.
	for span := range e.listeners {
		e.logger.Warn("dropping orphaned annotation span", zap.String("text", dom.TextContent(span)))
		delete(e.listeners, span)
	}

	for _, p := range parents {
		normalize(p)
	}
	if removed > 0 {
		e.logger.Info("cleared annotations", zap.Int("spans", removed))
	}
	return removed
}

// normalize merges adjacent text children of n and drops empty ones.
func normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != html.TextNode {
			c = next
			continue
		}
		if c.Data == "" {
			n.RemoveChild(c)
			c = next
			continue
		}
		for next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			after := next.NextSibling
			n.RemoveChild(next)
			next = after
		}
		c = next
	}
}
