package main

import (
	"io"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/japaniel/annotator/pkg/notify"
	"github.com/japaniel/annotator/pkg/tooltip"
)

// viewport is the layout of a page that is never displayed: a desktop-sized
// viewport with no element geometry, so the tooltip is never positioned.
type viewport struct{}

func (viewport) Viewport() tooltip.Size { return tooltip.Size{Width: 1280, Height: 800} }

func (viewport) Bounds(n *html.Node) tooltip.Rect { return tooltip.Rect{} }

// render writes doc without the notification banners, which only make sense
// on a live page. Annotation spans and the stylesheet are kept.
func render(w io.Writer, doc *html.Node) error {
	for _, id := range []string{notify.TransientID, notify.PersistentID} {
		for _, n := range dom.QuerySelectorAll(doc, "#"+id) {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
		}
	}
	return html.Render(w, doc)
}
