package tooltip

import "golang.org/x/net/html"

// Rect is a viewport-relative box in CSS pixels.
type Rect struct {
	Left, Top, Width, Height float64
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Size is the viewport size in CSS pixels.
type Size struct {
	Width, Height float64
}

// Layout supplies geometry from whatever renders the document.
type Layout interface {
	Viewport() Size
	// Bounds returns the viewport-relative box of n. Unrendered nodes have zero size.
	Bounds(n *html.Node) Rect
}

// Geometry holds the fixed distances used by Place.
type Geometry struct {
	// Gap separates the tooltip from its target.
	Gap float64
	// MinTop is the closest the tooltip may come to the top edge when placed above.
	MinTop float64
	// EdgeBuffer is kept free on the left, right and bottom edges.
	EdgeBuffer float64
}

// Placement is where the tooltip's top-left corner goes.
type Placement struct {
	Left, Top float64
	// Below is set when the tooltip could not fit above its target.
	Below bool
}

// Place positions tip relative to target inside vp. Above the target is
// preferred; below is the fallback, clamped to stay on screen. Horizontally the
// tooltip is centred on the target and clamped to the edge buffers.
func Place(target, tip Rect, vp Size, g Geometry) Placement {
	var p Placement

	p.Top = target.Top - tip.Height - g.Gap
	if p.Top < g.MinTop {
		p.Below = true
		p.Top = target.Bottom() + g.Gap
		if p.Top+tip.Height > vp.Height-g.EdgeBuffer {
			p.Top = vp.Height - g.EdgeBuffer - tip.Height
		}
		// Taller than the viewport: pin to the top edge.
		if p.Top < g.EdgeBuffer {
			p.Top = g.EdgeBuffer
		}
	}

	p.Left = target.Left + target.Width/2 - tip.Width/2
	if p.Left+tip.Width > vp.Width-g.EdgeBuffer {
		p.Left = vp.Width - g.EdgeBuffer - tip.Width
	}
	if p.Left < g.EdgeBuffer {
		p.Left = g.EdgeBuffer
	}
	return p
}
