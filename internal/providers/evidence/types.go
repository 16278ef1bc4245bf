package evidence

import "context"

// Item is one piece of evidence gathered about a company
type Item struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Evidence item types produced by the web collector
const (
	TypeIdentity    = "identity"
	TypePositioning = "positioning"
	TypeOffering    = "offering"
	TypeTechnology  = "technology"
	TypeContent     = "content"
)

// Criteria tunes a collection pass
type Criteria struct {
	// Thesis is the investment thesis guiding relevance decisions
	Thesis string
	// MaxPages bounds how many pages are fetched per collection (default 3)
	MaxPages int
}

// Collection is the result of one collection pass
type Collection struct {
	CollectionID string `json:"collection_id"`
	Items        []Item `json:"items"`
}

// Collector gathers evidence about a company from external sources
type Collector interface {
	Collect(ctx context.Context, company, website string, criteria Criteria) (*Collection, error)
}
