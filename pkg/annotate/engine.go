// Package annotate locates difficult phrases in a page, wraps them in
// annotation spans and drives the tooltip and notification banners for them.
package annotate

import (
	"github.com/go-shiori/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/japaniel/annotator/pkg/loop"
	"github.com/japaniel/annotator/pkg/notify"
	"github.com/japaniel/annotator/pkg/tooltip"
)

// Options configures an Engine.
type Options struct {
	// RequireTranslation rejects tuples without a translation.
	RequireTranslation bool
	Tooltip            tooltip.Config
	Notify             notify.Config
	Logger             *zap.Logger
}

// DefaultOptions returns the stock engine options.
func DefaultOptions() Options {
	return Options{
		RequireTranslation: true,
		Tooltip:            tooltip.DefaultConfig(),
		Notify:             notify.DefaultConfig(),
	}
}

// Engine is the per-page annotation context. It owns the tooltip, the
// notification slots, the hover listener registry and the in-flight flags.
// All methods must be called on the loop goroutine.
type Engine struct {
	doc  *html.Node
	body *html.Node
	root *html.Node

	tooltip *tooltip.Controller
	notes   *notify.Surface

	// listeners maps each live annotation span to its payload.
	listeners map[*html.Node]Payload
	// binder receives each new span; it is the engine itself outside tests.
	binder Binder

	requireTranslation bool
	inFlight           bool
	applying           bool
	styled             bool

	logger *zap.Logger
}

// New creates an engine for doc. Annotations are applied under root; a nil
// root means the page body.
func New(doc, root *html.Node, sched loop.Scheduler, layout tooltip.Layout, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	body := dom.QuerySelector(doc, "body")
	if root == nil {
		root = body
	}
	if root == nil {
		root = doc
	}
	e := &Engine{
		doc:                doc,
		body:               body,
		root:               root,
		tooltip:            tooltip.New(body, sched, layout, opts.Tooltip, logger),
		notes:              notify.New(body, sched, opts.Notify, logger),
		listeners:          make(map[*html.Node]Payload),
		requireTranslation: opts.RequireTranslation,
		logger:             logger.Named("annotate"),
	}
	e.binder = e
	return e
}

// Root returns the element annotations are applied under.
func (e *Engine) Root() *html.Node { return e.root }

// Tooltip returns the engine's tooltip controller.
func (e *Engine) Tooltip() *tooltip.Controller { return e.tooltip }

// Notifications returns the engine's notification surface.
func (e *Engine) Notifications() *notify.Surface { return e.notes }

// Spans returns the number of live annotation spans.
func (e *Engine) Spans() int { return len(e.listeners) }

// Bind registers hover behaviour for a freshly created span.
func (e *Engine) Bind(span *html.Node, p Payload) {
	e.listeners[span] = p
}

// ShowProcessing starts an operation and shows the persistent processing
// banner. It returns ErrBusy while another operation is active.
func (e *Engine) ShowProcessing(msg string) error {
	if e.inFlight || e.applying {
		e.logger.Info("ignoring processing request while busy")
		return ErrBusy
	}
	e.inFlight = true
	e.injectStyles()
	e.notes.ShowPersistent(msg)
	return nil
}

// ApplyAnnotations ends the active operation: it clears the processing
// banner, applies tuples and shows the outcome.
func (e *Engine) ApplyAnnotations(tuples []Tuple) (Outcome, error) {
	out, err := e.Apply(tuples)
	if err != nil {
		return out, err
	}
	e.inFlight = false
	e.notes.ClearPersistent()
	e.injectStyles()
	e.notes.Notify(out.Message, out.Severity)
	return out, nil
}

// ShowError ends the active operation with an error banner.
func (e *Engine) ShowError(msg string) {
	e.inFlight = false
	e.notes.ClearPersistent()
	e.injectStyles()
	e.notes.Notify("Error: "+msg, notify.Error)
	e.logger.Warn("operation failed", zap.String("error", msg))
}

// HoverStart shows the tooltip for the annotation containing n.
// It reports whether n belongs to an annotation.
func (e *Engine) HoverStart(n *html.Node) bool {
	span := e.spanFor(n)
	if span == nil {
		return false
	}
	p := e.listeners[span]
	return e.tooltip.Show(span, tooltip.Content{Short: p.Short, Long: p.Long, Translation: p.Translation})
}

// HoverEnd starts the debounced hide for the annotation containing n.
func (e *Engine) HoverEnd(n *html.Node) {
	if e.spanFor(n) == nil {
		return
	}
	e.tooltip.Hide()
}

// Reposition re-places a visible tooltip after the page scrolled or resized.
func (e *Engine) Reposition() {
	e.tooltip.Reposition()
}

func (e *Engine) spanFor(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if _, ok := e.listeners[n]; ok {
			return n
		}
	}
	return nil
}
