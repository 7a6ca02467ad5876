package domain

// Citation is a numbered reference to a source URL, shown inline in the
// synthesized answer and listed at the end. Indices start at 1 and are
// assigned per distinct URL in first-occurrence order.
type Citation struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// LatencyBreakdown splits total query latency into retrieval and synthesis time.
type LatencyBreakdown struct {
	RetrievalMS int64 `json:"retrieval_ms"`
	SynthesisMS int64 `json:"synthesis_ms"`
}

// AnswerResult is the final product of one query.
type AnswerResult struct {
	Answer      string           `json:"answer"`
	Sources     []Citation       `json:"sources"`
	LatencyMS   int64            `json:"latency_ms"`
	Breakdown   LatencyBreakdown `json:"latency_breakdown"`
	VectorCount int              `json:"vector_count"`
	GraphCount  int              `json:"graph_count"`
}
