package glossary

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/japaniel/annotator/pkg/annotate"
)

// Index answers which glossary terms occur in a text.
type Index struct {
	// index is read concurrently by Find; guard it for later mutation.
	mu       sync.RWMutex
	index    map[string][]Entry
	entries  []Entry
	analyzer *Analyzer
	logger   *zap.Logger
}

// NewIndex builds an in-memory index keyed by term and readings. A nil
// analyzer disables Japanese base-form matching.
func NewIndex(entries []Entry, analyzer *Analyzer, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := make(map[string][]Entry)
	var kept []Entry
	for _, e := range entries {
		if strings.TrimSpace(e.Term) == "" {
			logger.Warn("skipping glossary entry without term")
			continue
		}
		kept = append(kept, e)
		idx[e.Term] = append(idx[e.Term], e)
		for _, r := range e.Readings {
			if r != "" && r != e.Term {
				idx[r] = append(idx[r], e)
			}
		}
	}
	return &Index{index: idx, entries: kept, analyzer: analyzer, logger: logger.Named("glossary")}
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Lookup returns the entries whose term or reading is key.
func (ix *Index) Lookup(key string) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.index[key]
}

type hit struct {
	offset int
	tuple  annotate.Tuple
}

// Find returns a tuple for every glossary term present in text, ordered by
// first appearance and deduplicated by phrase. Terms match as exact
// substrings; Japanese words also match through their dictionary form, in
// which case the phrase is the inflected form as written.
func (ix *Index) Find(text string) []annotate.Tuple {
	var hits []hit
	seen := make(map[string]bool)
	add := func(offset int, phrase string, e Entry) {
		if seen[phrase] {
			return
		}
		seen[phrase] = true
		hits = append(hits, hit{offset: offset, tuple: annotate.Tuple{
			Phrase:           phrase,
			ShortExplanation: e.Short,
			LongExplanation:  e.Long,
			Translation:      e.Translation,
		}})
	}

	for _, e := range ix.entries {
		if i := strings.Index(text, e.Term); i >= 0 {
			add(i, e.Term, e)
		}
	}

	if ix.analyzer != nil {
		for _, tok := range ix.analyzer.Analyze(text) {
			if seen[tok.Surface] {
				continue
			}
			matches := ix.Lookup(tok.Surface)
			if len(matches) == 0 && tok.BaseForm != tok.Surface {
				matches = ix.Lookup(tok.BaseForm)
			}
			if len(matches) == 0 {
				continue
			}
			add(tok.Offset, tok.Surface, matches[0])
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })
	out := make([]annotate.Tuple, len(hits))
	for i, h := range hits {
		out[i] = h.tuple
	}
	ix.logger.Debug("glossary matches", zap.Int("count", len(out)))
	return out
}
