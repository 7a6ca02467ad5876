package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackatlas/stackatlas/internal/core/domain"
	"github.com/stackatlas/stackatlas/internal/core/ports"
)

const defaultStageTimeout = 30 * time.Second

// HybridRetriever fuses vector search, cross-encoder reranking and graph
// traversal into one retrieval pass. The pipeline is strictly sequential;
// the only branches are empty-result short circuits. Failures propagate
// with a stage tag and nothing else — no retry, no fallback to a weaker
// ranking.
type HybridRetriever struct {
	embedder     ports.Embedder
	searcher     ports.VectorSearcher
	reranker     ports.Reranker
	graph        ports.GraphReader
	stageTimeout time.Duration
}

func NewHybridRetriever(
	embedder ports.Embedder,
	searcher ports.VectorSearcher,
	reranker ports.Reranker,
	graph ports.GraphReader,
	stageTimeout time.Duration,
) *HybridRetriever {
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}
	return &HybridRetriever{
		embedder:     embedder,
		searcher:     searcher,
		reranker:     reranker,
		graph:        graph,
		stageTimeout: stageTimeout,
	}
}

func (r *HybridRetriever) Retrieve(ctx context.Context, query domain.Query) (domain.RetrievalBundle, error) {
	vector, err := r.embedQuery(ctx, query.Text)
	if err != nil {
		return domain.RetrievalBundle{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.search(ctx, vector, query)
	if err != nil {
		return domain.RetrievalBundle{}, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		// Primary early exit: nothing to rerank, nothing to seed the graph with.
		return emptyBundle(), nil
	}

	kept, err := r.rerank(ctx, query, hits)
	if err != nil {
		return domain.RetrievalBundle{}, fmt.Errorf("rerank: %w", err)
	}

	entities := collectEntityNames(kept)

	facts := []domain.GraphFact{}
	if len(entities) > 0 {
		facts, err = r.traverse(ctx, entities, query.MaxGraphHops)
		if err != nil {
			return domain.RetrievalBundle{}, fmt.Errorf("graph traversal: %w", err)
		}
	}

	return domain.RetrievalBundle{
		VectorResults: kept,
		GraphResults:  facts,
		EntityNames:   entities,
	}, nil
}

func (r *HybridRetriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()
	return r.embedder.EmbedQuery(ctx, text)
}

func (r *HybridRetriever) search(ctx context.Context, vector []float32, query domain.Query) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()
	filter := domain.SearchFilter{
		SourceTypes: query.SourceTypes,
		After:       query.After,
	}
	return r.searcher.Search(ctx, vector, query.TopK, filter)
}

func (r *HybridRetriever) rerank(ctx context.Context, query domain.Query, hits []domain.Candidate) ([]domain.RerankedCandidate, error) {
	passages := make([]string, len(hits))
	for i, hit := range hits {
		passages[i] = hit.Content
	}

	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()

	ranked, err := r.reranker.RerankWithIndices(ctx, query.Text, passages, query.RerankTopN)
	if err != nil {
		return nil, err
	}

	kept := make([]domain.RerankedCandidate, 0, len(ranked))
	for _, rank := range ranked {
		if rank.Index < 0 || rank.Index >= len(hits) {
			return nil, fmt.Errorf("passage index %d out of range", rank.Index)
		}
		kept = append(kept, domain.RerankedCandidate{
			Candidate:   hits[rank.Index],
			RerankScore: rank.Score,
		})
	}
	return kept, nil
}

func (r *HybridRetriever) traverse(ctx context.Context, entities []string, maxHops int) ([]domain.GraphFact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()
	return r.graph.TraverseFromEntities(ctx, entities, maxHops)
}

func emptyBundle() domain.RetrievalBundle {
	return domain.RetrievalBundle{
		VectorResults: []domain.RerankedCandidate{},
		GraphResults:  []domain.GraphFact{},
		EntityNames:   []string{},
	}
}

// collectEntityNames gathers the "entities" metadata values of the kept
// candidates, deduplicated in first-seen order.
func collectEntityNames(candidates []domain.RerankedCandidate) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, 8)
	for _, candidate := range candidates {
		for _, name := range metadataEntities(candidate.Metadata) {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func metadataEntities(metadata map[string]any) []string {
	raw, ok := metadata["entities"]
	if !ok {
		return nil
	}
	switch values := raw.(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))
		for _, value := range values {
			if s, ok := value.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
