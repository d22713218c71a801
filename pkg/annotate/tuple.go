package annotate

import (
	"fmt"
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// Tuple is one phrase identified by the language model together with its explanations.
type Tuple struct {
	Phrase           string `json:"phrase"`
	ShortExplanation string `json:"short_explanation"`
	LongExplanation  string `json:"long_explanation"`
	// Translation is optional unless the engine is configured to require it.
	Translation string `json:"vietnamese_translation,omitempty"`
}

// Validate reports why a tuple cannot be applied, or nil when it is well formed.
func (t Tuple) Validate(requireTranslation bool) error {
	var missing []string
	if strings.TrimSpace(t.Phrase) == "" {
		missing = append(missing, "phrase")
	}
	if strings.TrimSpace(t.ShortExplanation) == "" {
		missing = append(missing, "short_explanation")
	}
	if strings.TrimSpace(t.LongExplanation) == "" {
		missing = append(missing, "long_explanation")
	}
	if requireTranslation && strings.TrimSpace(t.Translation) == "" {
		missing = append(missing, "translation")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedTuple, strings.Join(missing, ", "))
	}
	return nil
}

// Payload returns the explanation data carried by spans created for t.
func (t Tuple) Payload() Payload {
	return Payload{
		Short:       t.ShortExplanation,
		Long:        t.LongExplanation,
		Translation: t.Translation,
	}
}

// Payload is the non-displayed explanation attached to an annotation span.
// Empty fields are absent.
type Payload struct {
	Short       string
	Long        string
	Translation string
}

// Empty reports whether there is nothing to show for p.
func (p Payload) Empty() bool {
	return p.Short == "" && p.Long == "" && p.Translation == ""
}

const (
	// SpanClass marks annotation spans. The Locator never descends into an element carrying it.
	SpanClass = "annotated-phrase"

	attrShort       = "data-short-explanation"
	attrLong        = "data-long-explanation"
	attrTranslation = "data-translation"

	// UIAttr marks elements owned by the engine (tooltip, notifications, styles).
	UIAttr = "data-annotator-ui"
)

// IsSpan reports whether n is an annotation span.
func IsSpan(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.Data != "span" {
		return false
	}
	for _, c := range strings.Fields(dom.ClassName(n)) {
		if c == SpanClass {
			return true
		}
	}
	return false
}

// PayloadOf reads the payload attached to an annotation span.
func PayloadOf(span *html.Node) Payload {
	return Payload{
		Short:       dom.GetAttribute(span, attrShort),
		Long:        dom.GetAttribute(span, attrLong),
		Translation: dom.GetAttribute(span, attrTranslation),
	}
}

func newSpan(text string, p Payload) *html.Node {
	span := dom.CreateElement("span")
	dom.SetAttribute(span, "class", SpanClass)
	if p.Short != "" {
		dom.SetAttribute(span, attrShort, p.Short)
	}
	if p.Long != "" {
		dom.SetAttribute(span, attrLong, p.Long)
	}
	if p.Translation != "" {
		dom.SetAttribute(span, attrTranslation, p.Translation)
	}
	span.AppendChild(dom.CreateTextNode(text))
	return span
}
