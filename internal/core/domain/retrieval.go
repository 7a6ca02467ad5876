package domain

// Candidate is a scored text chunk returned by vector search.
type Candidate struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Score     float64        `json:"score"`
	DocID     string         `json:"doc_id"`
	SourceURL string         `json:"source_url"`
	Section   string         `json:"section"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RerankedCandidate is a Candidate the cross-encoder kept, with its rerank score.
type RerankedCandidate struct {
	Candidate
	RerankScore float64 `json:"rerank_score"`
}

// RankedPassage ties a rerank score back to the passage's position in the
// original input, so callers can recover the full Candidate.
type RankedPassage struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// GraphFact is one row of a bounded graph-neighborhood expansion.
type GraphFact struct {
	StartEntity   string         `json:"start_entity"`
	Relationships []string       `json:"relationships"`
	EndEntity     string         `json:"end_entity"`
	EndLabels     []string       `json:"end_labels,omitempty"`
	EndProperties map[string]any `json:"end_properties,omitempty"`
	HopCount      int            `json:"hop_count"`
}

// RetrievalBundle fuses vector and graph retrieval for one query.
// The zero value is the empty bundle.
type RetrievalBundle struct {
	VectorResults []RerankedCandidate `json:"vector_results"`
	GraphResults  []GraphFact         `json:"graph_results"`
	EntityNames   []string            `json:"entity_names"`
}
