package annotate

import (
	"cmp"
	"fmt"
	"slices"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/japaniel/annotator/pkg/notify"
)

const (
	msgNoPhrases = "No difficult phrases found."
	msgNotFound  = "Could not find phrases on page."
)

// Outcome summarises one Apply run.
type Outcome struct {
	// Applied counts tuples with at least one wrapped occurrence.
	Applied int
	// Occurrences counts spans created.
	Occurrences int
	// Skipped counts malformed tuples.
	Skipped int
	// Wrapped maps each valid phrase to the spans created for it, zero included.
	Wrapped  map[string]int
	Severity notify.Severity
	Message  string
}

// Apply wraps every occurrence of every tuple's phrase under the engine root.
// Longer phrases go first so a shorter phrase contained in a longer one
// cannot fragment it; equal lengths keep input order. Existing annotations are
// left in place and never re-wrapped, so repeated calls accumulate.
func (e *Engine) Apply(tuples []Tuple) (Outcome, error) {
	if e.applying {
		return Outcome{}, ErrBusy
	}
	e.applying = true
	defer func() { e.applying = false }()

	if len(tuples) == 0 {
		return Outcome{Severity: notify.Info, Message: msgNoPhrases}, nil
	}

	ordered := slices.Clone(tuples)
	slices.SortStableFunc(ordered, func(a, b Tuple) int {
		return cmp.Compare(utf8.RuneCountInString(b.Phrase), utf8.RuneCountInString(a.Phrase))
	})

	out := Outcome{Wrapped: make(map[string]int, len(ordered))}
	for _, t := range ordered {
		if err := t.Validate(e.requireTranslation); err != nil {
			out.Skipped++
			e.logger.Warn("skipping tuple", zap.String("phrase", t.Phrase), zap.Error(err))
			continue
		}
		n, err := e.applyTuple(t)
		out.Occurrences += n
		out.Wrapped[t.Phrase] += n
		if err != nil {
			e.logger.Warn("failed to annotate phrase", zap.String("phrase", t.Phrase), zap.Error(err))
			continue
		}
		if n > 0 {
			out.Applied++
		}
	}
	e.logger.Info("applied annotations",
		zap.Int("tuples", len(tuples)), zap.Int("applied", out.Applied), zap.Int("spans", out.Occurrences))

	if out.Applied == 0 {
		out.Severity, out.Message = notify.Warning, msgNotFound
		return out, nil
	}
	e.injectStyles()
	out.Severity = notify.Success
	out.Message = fmt.Sprintf("Annotated %d phrase(s).", out.Applied)
	return out, nil
}

// applyTuple wraps all occurrences of t.Phrase and returns how many spans it created.
func (e *Engine) applyTuple(t Tuple) (wrapped int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMutation, r)
		}
	}()
	occs, err := Locate(e.root, t.Phrase)
	if err != nil {
		return 0, err
	}
	p := t.Payload()
	// Last to first: splicing keeps the prefix in the original node, so earlier offsets stay valid.
	for i := len(occs) - 1; i >= 0; i-- {
		o := occs[i]
		if _, err := Splice(o.Node, o.Offset, len(t.Phrase), p, e.binder); err != nil {
			return wrapped, err
		}
		wrapped++
	}
	return wrapped, nil
}
