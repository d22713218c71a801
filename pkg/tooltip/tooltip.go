// Package tooltip owns the single floating panel that explains a hovered annotation.
package tooltip

import (
	"fmt"
	"time"

	"github.com/go-shiori/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/japaniel/annotator/pkg/loop"
)

// ElementID is the id of the tooltip element.
const ElementID = "annotator-tooltip"

// Content is what the tooltip shows. Empty fields are omitted.
type Content struct {
	Short       string
	Long        string
	Translation string
}

func (c Content) empty() bool {
	return c.Short == "" && c.Long == "" && c.Translation == ""
}

// Config tunes placement and timing.
type Config struct {
	Geometry
	// HideDelay debounces hover-end so moving between adjacent annotations does not flicker.
	HideDelay time.Duration
	// TranslationLabel prefixes the translation section.
	TranslationLabel string
}

// DefaultConfig returns the stock tooltip settings.
func DefaultConfig() Config {
	return Config{
		Geometry:         Geometry{Gap: 10, MinTop: 10, EdgeBuffer: 10},
		HideDelay:        150 * time.Millisecond,
		TranslationLabel: "Vietnamese",
	}
}

// State is the controller's visibility.
type State int

const (
	Hidden State = iota
	Showing
)

func (s State) String() string {
	if s == Showing {
		return "showing"
	}
	return "hidden"
}

// Controller shows, positions and hides the tooltip. Methods must be called on the loop goroutine.
type Controller struct {
	body   *html.Node
	sched  loop.Scheduler
	layout Layout
	cfg    Config
	logger *zap.Logger

	el        *html.Node
	state     State
	target    *html.Node
	gen       uint64
	hideTimer loop.Timer
	placement Placement
}

// New creates a controller that attaches its element to body on first use.
func New(body *html.Node, sched loop.Scheduler, layout Layout, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		body:   body,
		sched:  sched,
		layout: layout,
		cfg:    cfg,
		logger: logger.Named("tooltip"),
	}
}

// State returns the current visibility.
func (c *Controller) State() State { return c.state }

// Target returns the element the tooltip is showing for, or nil.
func (c *Controller) Target() *html.Node { return c.target }

// Element returns the tooltip element, or nil before the first show.
func (c *Controller) Element() *html.Node { return c.el }

// Placement returns the last computed position.
func (c *Controller) Placement() Placement { return c.placement }

// Show fills the tooltip from content and anchors it to target. Any pending
// hide is cancelled. Positioning waits for the next frame so the element has
// been laid out with its new content. Returns false when there is nothing to show.
func (c *Controller) Show(target *html.Node, content Content) bool {
	c.cancelHide()
	if content.empty() {
		if c.state == Showing {
			c.hide()
		}
		return false
	}

	el := c.element()
	c.render(content)
	dom.SetAttribute(el, "class", "annotator-tooltip visible")

	c.state = Showing
	c.target = target
	c.gen++
	gen := c.gen
	c.sched.Defer(func() {
		if c.gen != gen || c.state != Showing {
			return
		}
		c.position()
	})
	return true
}

// Hide starts the debounced hide. A Show before the delay elapses cancels it.
func (c *Controller) Hide() {
	if c.state == Hidden {
		return
	}
	c.cancelHide()
	c.hideTimer = c.sched.AfterFunc(c.cfg.HideDelay, func() {
		c.hideTimer = nil
		c.hide()
	})
}

// HideNow hides immediately, cancelling any pending debounce.
func (c *Controller) HideNow() {
	c.cancelHide()
	if c.state == Showing {
		c.hide()
	}
}

// Reposition recomputes placement for the current target, e.g. after scroll or resize.
func (c *Controller) Reposition() {
	if c.state != Showing {
		return
	}
	c.position()
}

// Remove hides the tooltip and detaches its element from the page. The next
// Show attaches it again.
func (c *Controller) Remove() {
	c.HideNow()
	if c.el != nil && c.el.Parent != nil {
		c.el.Parent.RemoveChild(c.el)
	}
}

func (c *Controller) cancelHide() {
	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
}

func (c *Controller) hide() {
	if c.el != nil {
		dom.SetAttribute(c.el, "class", "annotator-tooltip")
		c.empty()
	}
	c.state = Hidden
	c.target = nil
	c.gen++
}

func (c *Controller) element() *html.Node {
	if c.el != nil {
		if c.el.Parent == nil && c.body != nil {
			// The page removed it; put it back.
			c.body.AppendChild(c.el)
		}
		return c.el
	}
	el := dom.CreateElement("div")
	dom.SetAttribute(el, "id", ElementID)
	dom.SetAttribute(el, "class", "annotator-tooltip")
	dom.SetAttribute(el, "data-annotator-ui", "tooltip")
	dom.SetAttribute(el, "style", "position: fixed; pointer-events: none;")
	if c.body != nil {
		c.body.AppendChild(el)
	}
	c.el = el
	return el
}

func (c *Controller) empty() {
	for ch := c.el.FirstChild; ch != nil; ch = c.el.FirstChild {
		c.el.RemoveChild(ch)
	}
}

// render replaces every child of the tooltip with sections for content.
func (c *Controller) render(content Content) {
	c.empty()
	section := func(class string) *html.Node {
		if c.el.FirstChild != nil {
			c.el.AppendChild(dom.CreateElement("hr"))
		}
		div := dom.CreateElement("div")
		dom.SetAttribute(div, "class", class)
		c.el.AppendChild(div)
		return div
	}
	if content.Short != "" {
		section("annotator-tooltip-short").AppendChild(dom.CreateTextNode(content.Short))
	}
	if content.Long != "" {
		section("annotator-tooltip-long").AppendChild(dom.CreateTextNode(content.Long))
	}
	if content.Translation != "" {
		div := section("annotator-tooltip-translation")
		label := dom.CreateElement("strong")
		label.AppendChild(dom.CreateTextNode(c.cfg.TranslationLabel + ":"))
		div.AppendChild(label)
		div.AppendChild(dom.CreateTextNode(" " + content.Translation))
	}
}

func (c *Controller) position() {
	if c.layout == nil || c.target == nil {
		return
	}
	tip := c.layout.Bounds(c.el)
	if tip.Width <= 0 || tip.Height <= 0 {
		c.logger.Warn("tooltip has no size; skipping positioning",
			zap.Float64("width", tip.Width), zap.Float64("height", tip.Height))
		return
	}
	p := Place(c.layout.Bounds(c.target), tip, c.layout.Viewport(), c.cfg.Geometry)
	c.placement = p
	dom.SetAttribute(c.el, "style", fmt.Sprintf(
		"position: fixed; pointer-events: none; top: %.0fpx; left: %.0fpx;", p.Top, p.Left))
}
