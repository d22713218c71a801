package annotate

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/japaniel/annotator/pkg/loop/looptest"
	"github.com/japaniel/annotator/pkg/notify"
	"github.com/japaniel/annotator/pkg/tooltip"
)

type staticLayout struct{}

func (staticLayout) Viewport() tooltip.Size { return tooltip.Size{Width: 1024, Height: 768} }

func (staticLayout) Bounds(n *html.Node) tooltip.Rect {
	if dom.GetAttribute(n, "id") == tooltip.ElementID {
		return tooltip.Rect{Width: 200, Height: 60}
	}
	return tooltip.Rect{Left: 400, Top: 400, Width: 80, Height: 18}
}

func newEngine(t *testing.T, body string) (*Engine, *looptest.Manual, *html.Node) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sched := &looptest.Manual{}
	return New(doc, nil, sched, staticLayout{}, DefaultOptions()), sched, doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func tuple(phrase string) Tuple {
	return Tuple{
		Phrase:           phrase,
		ShortExplanation: "short " + phrase,
		LongExplanation:  "long " + phrase,
		Translation:      "dịch " + phrase,
	}
}

func spans(doc *html.Node) []*html.Node {
	return dom.QuerySelectorAll(doc, "span."+SpanClass)
}

func TestApplyPreservesText(t *testing.T) {
	e, _, doc := newEngine(t, "<p>A dog and a catalog</p>")
	before := dom.TextContent(e.Root())

	out, err := e.Apply([]Tuple{tuple("cat")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Applied != 1 || out.Occurrences != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := dom.TextContent(e.Root()); got != before {
		t.Errorf("text changed: %q -> %q", before, got)
	}
	s := spans(doc)
	if len(s) != 1 || dom.TextContent(s[0]) != "cat" {
		t.Fatalf("spans = %d", len(s))
	}
	if after := s[0].NextSibling; after == nil || after.Data != "alog" {
		t.Errorf("expected trailing text %q", "alog")
	}
}

func TestLongerPhraseWins(t *testing.T) {
	e, _, doc := newEngine(t, "<p>I moved to New York City last year.</p>")

	out, err := e.Apply([]Tuple{tuple("New York"), tuple("New York City")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s := spans(doc)
	if len(s) != 1 {
		t.Fatalf("got %d spans, want 1", len(s))
	}
	if dom.TextContent(s[0]) != "New York City" {
		t.Errorf("span text = %q", dom.TextContent(s[0]))
	}
	if PayloadOf(s[0]).Short != "short New York City" {
		t.Errorf("span carries %q", PayloadOf(s[0]).Short)
	}
	if out.Applied != 1 {
		t.Errorf("applied = %d, want 1", out.Applied)
	}
	if out.Message != "Annotated 1 phrase(s)." {
		t.Errorf("message = %q", out.Message)
	}
}

func TestEveryOccurrenceWrapped(t *testing.T) {
	e, _, doc := newEngine(t, "<p>the cat sat on the cat mat</p>")

	out, err := e.Apply([]Tuple{tuple("cat")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s := spans(doc)
	if len(s) != 2 {
		t.Fatalf("got %d spans, want 2", len(s))
	}
	if PayloadOf(s[0]) != PayloadOf(s[1]) {
		t.Error("occurrences carry different payloads")
	}
	if out.Applied != 1 || out.Occurrences != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if e.Spans() != 2 {
		t.Errorf("registered listeners = %d, want 2", e.Spans())
	}
	if dom.TextContent(e.Root()) != "the cat sat on the cat mat" {
		t.Errorf("text changed: %q", dom.TextContent(e.Root()))
	}
}

func TestEmptyBatchLeavesDocumentUntouched(t *testing.T) {
	e, _, doc := newEngine(t, "<p>nothing to see</p>")
	before := render(t, doc)

	out, err := e.Apply(nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Severity != notify.Info || out.Message != "No difficult phrases found." {
		t.Errorf("outcome = %+v", out)
	}
	if render(t, doc) != before {
		t.Error("empty batch mutated the document")
	}
}

func TestPhrasesNotOnPage(t *testing.T) {
	e, _, _ := newEngine(t, "<p>plain text</p>")

	out, err := e.Apply([]Tuple{tuple("absent")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Severity != notify.Warning || out.Message != "Could not find phrases on page." {
		t.Errorf("outcome = %+v", out)
	}
}

func TestMalformedTupleSkipped(t *testing.T) {
	e, _, doc := newEngine(t, "<p>alpha beta</p>")
	bad := tuple("alpha")
	bad.Translation = ""

	out, err := e.Apply([]Tuple{bad, tuple("beta"), {Phrase: "   ", ShortExplanation: "s", LongExplanation: "l", Translation: "t"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Skipped != 2 || out.Applied != 1 {
		t.Errorf("outcome = %+v", out)
	}
	s := spans(doc)
	if len(s) != 1 || dom.TextContent(s[0]) != "beta" {
		t.Errorf("expected only beta annotated, got %d spans", len(s))
	}
}

// hookBinder binds through the engine, running hook after each bind.
type hookBinder struct {
	e    *Engine
	hook func(span *html.Node)
}

func (h hookBinder) Bind(span *html.Node, p Payload) {
	h.e.Bind(span, p)
	h.hook(span)
}

func TestMutationFailureSkipsTuple(t *testing.T) {
	e, _, doc := newEngine(t, "<p>cat one</p><p>cat two</p><p>a dog</p>")
	first := dom.QuerySelector(doc, "p")
	fired := false
	// Occurrences are spliced last to first; after the first splice the page
	// detaches the text node holding the remaining "cat".
	e.binder = hookBinder{e: e, hook: func(*html.Node) {
		if !fired {
			fired = true
			first.RemoveChild(first.FirstChild)
		}
	}}

	out, err := e.Apply([]Tuple{tuple("cat"), tuple("dog")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Applied != 1 {
		t.Errorf("applied = %d, want 1", out.Applied)
	}
	if out.Severity != notify.Success || out.Message != "Annotated 1 phrase(s)." {
		t.Errorf("outcome = %+v", out)
	}
	var texts []string
	for _, s := range spans(doc) {
		texts = append(texts, dom.TextContent(s))
	}
	if !slices.Contains(texts, "dog") {
		t.Errorf("later tuple not applied, spans = %q", texts)
	}
}

func TestTranslationOptional(t *testing.T) {
	doc, err := html.Parse(strings.NewReader("<html><body><p>alpha</p></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	opts.RequireTranslation = false
	e := New(doc, nil, &looptest.Manual{}, staticLayout{}, opts)

	out, err := e.Apply([]Tuple{{Phrase: "alpha", ShortExplanation: "s", LongExplanation: "l"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Applied != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if dom.HasAttribute(spans(doc)[0], attrTranslation) {
		t.Error("absent translation must not be stored")
	}
}

func TestRepeatedApplyAccumulates(t *testing.T) {
	e, _, doc := newEngine(t, "<p>red fox and red hen</p>")

	if _, err := e.Apply([]Tuple{tuple("red fox")}); err != nil {
		t.Fatal(err)
	}
	out, err := e.Apply([]Tuple{tuple("red")})
	if err != nil {
		t.Fatal(err)
	}
	// "red" inside the existing "red fox" span is not wrapped again.
	if out.Occurrences != 1 {
		t.Errorf("second run wrapped %d occurrences, want 1", out.Occurrences)
	}
	if len(spans(doc)) != 2 {
		t.Errorf("got %d spans, want 2", len(spans(doc)))
	}
	for _, s := range spans(doc) {
		if len(spans(s)) != 0 {
			t.Error("span nested inside another span")
		}
	}
}

func TestApplySkipsScriptAndStyle(t *testing.T) {
	e, _, doc := newEngine(t, "<script>var word = 1</script><style>.word{}</style><p>a word</p>")

	out, err := e.Apply([]Tuple{tuple("word")})
	if err != nil {
		t.Fatal(err)
	}
	if out.Occurrences != 1 {
		t.Errorf("occurrences = %d, want 1", out.Occurrences)
	}
	if s := spans(doc); len(s) != 1 || s[0].Parent.Data != "p" {
		t.Error("expected the single span inside the paragraph")
	}
}

func TestClearRestoresDocument(t *testing.T) {
	e, _, doc := newEngine(t, "<p>the cat sat on the cat mat</p><p>New York City</p>")
	root := e.Root()
	before := render(t, root)

	if _, err := e.Apply([]Tuple{tuple("cat"), tuple("New York")}); err != nil {
		t.Fatal(err)
	}
	if got := e.Clear(); got != 3 {
		t.Errorf("Clear removed %d spans, want 3", got)
	}
	// Styles live in head, so the body is comparable byte for byte.
	if got := render(t, root); got != before {
		t.Errorf("after clear:\n%s\nwant:\n%s", got, before)
	}
	if e.Spans() != 0 {
		t.Errorf("listeners left: %d", e.Spans())
	}
	if e.Clear() != 0 {
		t.Error("second Clear should remove nothing")
	}
	if len(spans(doc)) != 0 {
		t.Error("spans left after clear")
	}
}

func TestClearAfterHoverRestoresText(t *testing.T) {
	e, sched, doc := newEngine(t, "<p>a phrase here</p>")
	body := dom.QuerySelector(doc, "body")
	if _, err := e.Apply([]Tuple{tuple("phrase")}); err != nil {
		t.Fatal(err)
	}
	span := spans(doc)[0]
	e.HoverStart(span)
	sched.Flush()
	e.HoverEnd(span)
	sched.Advance(time.Second)

	e.Clear()
	e.Clear()
	if got := dom.TextContent(body); got != "a phrase here" {
		t.Errorf("body text after clear = %q, want %q", got, "a phrase here")
	}
}

func TestClearWhileTooltipShowing(t *testing.T) {
	e, sched, doc := newEngine(t, "<p>a phrase here</p>")
	if _, err := e.Apply([]Tuple{tuple("phrase")}); err != nil {
		t.Fatal(err)
	}
	e.HoverStart(spans(doc)[0])
	sched.Flush()

	e.Clear()
	if e.Tooltip().State() != tooltip.Hidden {
		t.Error("tooltip still showing after clear")
	}
	if dom.QuerySelector(doc, "#"+tooltip.ElementID) != nil {
		t.Error("tooltip element left in the page")
	}
	if got := dom.TextContent(dom.QuerySelector(doc, "body")); got != "a phrase here" {
		t.Errorf("body text = %q", got)
	}

	// Hovering again after a clear brings the tooltip back.
	if _, err := e.Apply([]Tuple{tuple("phrase")}); err != nil {
		t.Fatal(err)
	}
	if !e.HoverStart(spans(doc)[0]) || dom.QuerySelector(doc, "#"+tooltip.ElementID) == nil {
		t.Error("tooltip not reattached on hover")
	}
}

func TestClearDropsOrphanedSpan(t *testing.T) {
	e, _, doc := newEngine(t, "<p>one cat</p><p>two cat</p>")
	if _, err := e.Apply([]Tuple{tuple("cat")}); err != nil {
		t.Fatal(err)
	}
	// The page throws away one annotated paragraph on its own.
	orphan := dom.QuerySelectorAll(doc, "p")[1]
	orphan.Parent.RemoveChild(orphan)

	if got := e.Clear(); got != 1 {
		t.Errorf("Clear removed %d spans, want 1", got)
	}
	if e.Spans() != 0 {
		t.Errorf("listeners left: %d", e.Spans())
	}
	if got := dom.TextContent(dom.QuerySelector(doc, "body")); got != "one cat" {
		t.Errorf("body text = %q", got)
	}
}

func TestClearWithNothingAnnotated(t *testing.T) {
	e, _, doc := newEngine(t, "<p>untouched</p>")
	before := render(t, doc)
	if e.Clear() != 0 {
		t.Error("expected nothing cleared")
	}
	if render(t, doc) != before {
		t.Error("Clear mutated an unannotated document")
	}
}

func TestStylesInjectedOnce(t *testing.T) {
	e, _, doc := newEngine(t, "<p>one two</p>")
	if _, err := e.Apply([]Tuple{tuple("one")}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply([]Tuple{tuple("two")}); err != nil {
		t.Fatal(err)
	}
	styles := dom.QuerySelectorAll(doc, "#"+StyleID)
	if len(styles) != 1 {
		t.Fatalf("got %d style elements, want 1", len(styles))
	}
	if styles[0].Parent.Data != "head" {
		t.Errorf("styles injected into %s", styles[0].Parent.Data)
	}
}

func TestHoverShowsAndHidesTooltip(t *testing.T) {
	e, sched, doc := newEngine(t, "<p>a phrase here</p>")
	if _, err := e.Apply([]Tuple{tuple("phrase")}); err != nil {
		t.Fatal(err)
	}
	span := spans(doc)[0]

	// Events arrive on the span's text child.
	if !e.HoverStart(span.FirstChild) {
		t.Fatal("hover over an annotation was not handled")
	}
	tip := e.Tooltip()
	if tip.State() != tooltip.Showing || tip.Target() != span {
		t.Fatalf("tooltip state = %v", tip.State())
	}
	text := dom.TextContent(tip.Element())
	for _, want := range []string{"short phrase", "long phrase", "dịch phrase"} {
		if !strings.Contains(text, want) {
			t.Errorf("tooltip missing %q: %q", want, text)
		}
	}
	sched.Flush()

	e.HoverEnd(span)
	if tip.State() != tooltip.Showing {
		t.Error("hide must be debounced")
	}
	sched.Advance(200 * time.Millisecond)
	if tip.State() != tooltip.Hidden {
		t.Errorf("tooltip state = %v after delay", tip.State())
	}
}

func TestHoverOutsideAnnotationIgnored(t *testing.T) {
	e, _, doc := newEngine(t, "<p>plain</p>")
	if e.HoverStart(dom.QuerySelector(doc, "p")) {
		t.Error("hover outside annotations should not be handled")
	}
	if e.Tooltip().State() != tooltip.Hidden {
		t.Error("tooltip shown for plain text")
	}
}

func TestShowProcessingBusyGuard(t *testing.T) {
	e, sched, doc := newEngine(t, "<p>word</p>")

	if err := e.ShowProcessing("Processing..."); err != nil {
		t.Fatalf("ShowProcessing: %v", err)
	}
	if err := e.ShowProcessing("again"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second ShowProcessing error = %v, want ErrBusy", err)
	}
	if el := dom.QuerySelector(doc, "#"+notify.PersistentID); el == nil || dom.TextContent(el) != "Processing..." {
		t.Fatal("processing banner missing")
	}

	if _, err := e.ApplyAnnotations([]Tuple{tuple("word")}); err != nil {
		t.Fatalf("ApplyAnnotations: %v", err)
	}
	// The processing banner fades out; the outcome banner outlives the fade.
	sched.Advance(time.Second)
	if dom.QuerySelector(doc, "#"+notify.PersistentID) != nil {
		t.Error("processing banner not cleared")
	}
	msg := dom.QuerySelector(doc, "#"+notify.TransientID)
	if msg == nil || dom.TextContent(msg) != "Annotated 1 phrase(s)." {
		t.Error("outcome banner missing")
	}
	if err := e.ShowProcessing("next"); err != nil {
		t.Errorf("engine still busy after apply: %v", err)
	}
}

func TestShowErrorEndsOperation(t *testing.T) {
	e, _, doc := newEngine(t, "<p>word</p>")
	if err := e.ShowProcessing("Processing..."); err != nil {
		t.Fatal(err)
	}
	e.ShowError("quota exceeded")

	msg := dom.QuerySelector(doc, "#"+notify.TransientID)
	if msg == nil || dom.TextContent(msg) != "Error: quota exceeded" {
		t.Fatal("error banner missing")
	}
	if !strings.Contains(dom.ClassName(msg), string(notify.Error)) {
		t.Errorf("banner class = %q", dom.ClassName(msg))
	}
	if err := e.ShowProcessing("retry"); err != nil {
		t.Errorf("engine still busy after error: %v", err)
	}
}
