package db

import "time"

// Source is a page that was annotated.
type Source struct {
	ID       int64
	URL      string
	Title    string
	Byline   string
	SiteName string
	AddedAt  time.Time
}

// Phrase is a difficult phrase with its explanations.
type Phrase struct {
	ID               int64
	Phrase           string
	ShortExplanation string
	LongExplanation  string
	Translation      string
}

// PhraseSource records how a phrase fared on one page.
type PhraseSource struct {
	Phrase
	SourceID int64
	// Applied is true once the phrase was wrapped on the page at least once.
	Applied     bool
	SeenCount   int
	FirstSeenAt time.Time
}
