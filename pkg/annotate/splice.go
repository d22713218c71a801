package annotate

import (
	"fmt"

	"golang.org/x/net/html"
)

// Binder attaches hover behaviour to a span as it is created.
type Binder interface {
	Bind(span *html.Node, p Payload)
}

// Splice replaces text.Data[offset:offset+length] with an annotation span
// carrying p, leaving before-text, span, after-text in sibling order.
// A match at the start of the node consumes the node instead of leaving an
// empty prefix, and a match at the end creates no after node.
//
// The original node keeps the before-text, so splicing several matches of one
// node from last to first keeps the earlier offsets valid.
func Splice(text *html.Node, offset, length int, p Payload, b Binder) (span *html.Node, err error) {
	if text == nil || text.Type != html.TextNode {
		return nil, fmt.Errorf("%w: not a text node", ErrOutOfRange)
	}
	parent := text.Parent
	if parent == nil {
		return nil, ErrDetached
	}
	if offset < 0 || length <= 0 || offset+length > len(text.Data) {
		return nil, fmt.Errorf("%w: [%d:%d] in %d bytes", ErrOutOfRange, offset, offset+length, len(text.Data))
	}
	defer func() {
		// html.Node panics on inconsistent sibling links.
		if r := recover(); r != nil {
			span, err = nil, fmt.Errorf("%w: %v", ErrMutation, r)
		}
	}()

	before := text.Data[:offset]
	match := text.Data[offset : offset+length]
	after := text.Data[offset+length:]

	span = newSpan(match, p)
	parent.InsertBefore(span, text.NextSibling)
	if after != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, span.NextSibling)
	}
	if before == "" {
		parent.RemoveChild(text)
	} else {
		text.Data = before
	}
	if b != nil {
		b.Bind(span, p)
	}
	return span, nil
}
