package ports

import (
	"context"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

// Embedder builds a fixed-dimension vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher performs filtered similarity search against the vector engine.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.Candidate, error)
}

// Reranker scores passages against a query with a cross-encoder model. Both a
// remote scoring service and an in-process model satisfy the contract.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string, topN int) ([]float64, error)
	RerankWithIndices(ctx context.Context, query string, passages []string, topN int) ([]domain.RankedPassage, error)
}

// GraphReader expands seed entity names into a bounded neighborhood of facts.
type GraphReader interface {
	TraverseFromEntities(ctx context.Context, entityNames []string, maxHops int) ([]domain.GraphFact, error)
}

// GraphWriter upserts topology discovered by ingestion. It is consumed by the
// ingestion subsystem, not the query path; it lives here because it
// establishes the node and relationship shapes the traversal queries assume.
type GraphWriter interface {
	WriteProxies(ctx context.Context, proxies []domain.Proxy) (domain.WriteStats, error)
	WriteRoutes(ctx context.Context, proxyName string, routes []domain.Route) (domain.WriteStats, error)
}

// AnswerGenerator produces the final user-facing answer text.
type AnswerGenerator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}
