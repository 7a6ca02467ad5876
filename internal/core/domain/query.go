package domain

import "time"

// Query is one natural-language question with optional retrieval filters.
// Zero numeric fields pick up configured defaults at the use-case boundary.
type Query struct {
	Text         string     `json:"text"`
	TopK         int        `json:"top_k"`
	RerankTopN   int        `json:"rerank_top_n"`
	SourceTypes  []string   `json:"source_types,omitempty"`
	After        *time.Time `json:"after,omitempty"`
	MaxGraphHops int        `json:"max_graph_hops"`

	// DryRun validates and applies defaults but skips every network call.
	DryRun bool `json:"dry_run,omitempty"`
}

// SearchFilter carries the metadata predicates applied to vector search.
type SearchFilter struct {
	SourceTypes []string
	After       *time.Time
}

// Empty reports whether the filter constrains anything at all.
func (f SearchFilter) Empty() bool {
	return len(f.SourceTypes) == 0 && f.After == nil
}
