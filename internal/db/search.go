package db

import "github.com/hexleaf/kbsearch/internal/domain/search/filter"

// TagQuery is the input for a pure tag-filtered search. Results carry no
// ranking signal; arrival order is index order.
type TagQuery struct {
	IndexName    string
	KBIDs        []string
	Filters      *filter.Set
	CandidateIDs []string
	Limit        int
	ReturnFields []string
	// IDsOnly requests key-only results (NOCONTENT), used to collect
	// candidate ids for a second-phase vector query.
	IDsOnly bool
}

// VectorQuery is the input for a range-bounded vector similarity search.
// Hits come back ascending by distance, capped at Radius.
type VectorQuery struct {
	IndexName    string
	KBIDs        []string
	Filters      *filter.Set
	CandidateIDs []string
	Vector       []float32
	Radius       float64
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Distance is populated only by
// vector queries.
type SearchEntry struct {
	Key      string
	Distance float64
	Fields   map[string]string
}
