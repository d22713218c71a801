package glossary

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token is a single analyzed unit of Japanese text.
type Token struct {
	Surface  string // as written, e.g. "行っ"
	BaseForm string // dictionary form, e.g. "行く"
	Reading  string // katakana, e.g. "イッ"
	POS      string
	// Offset is the byte offset of Surface in the analyzed text.
	Offset int
}

// Analyzer segments Japanese text.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a tokenizer backed by the IPA dictionary.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens with base forms and readings.
// Whitespace tokens are dropped.
func (a *Analyzer) Analyze(text string) []Token {
	var result []Token
	offset := 0
	for _, tok := range a.t.Tokenize(text) {
		// Locate the surface ourselves; unknown-word handling can skip bytes.
		if i := strings.Index(text[offset:], tok.Surface); i >= 0 {
			offset += i
		}
		start := offset
		offset += len(tok.Surface)

		if tok.Class == tokenizer.DUMMY || strings.TrimSpace(tok.Surface) == "" {
			continue
		}

		// IPA features: 0 POS, 1-3 sub-POS, 4 conjugation type, 5 conjugation
		// form, 6 base form, 7 reading, 8 pronunciation.
		features := tok.Features()
		t := Token{Surface: tok.Surface, BaseForm: tok.Surface, Offset: start}
		if len(features) > 0 {
			t.POS = features[0]
		}
		if len(features) > 6 && features[6] != "*" {
			t.BaseForm = features[6]
		}
		if len(features) > 7 && features[7] != "*" {
			t.Reading = features[7]
		}
		result = append(result, t)
	}
	return result
}
