package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

type embedderFake struct {
	calls int
	text  string
	err   error
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type searcherFake struct {
	calls  int
	limit  int
	filter domain.SearchFilter
	hits   []domain.Candidate
	err    error
}

func (f *searcherFake) Search(_ context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	f.calls++
	f.limit = limit
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type rerankerFake struct {
	calls    int
	passages []string
	topN     int
	ranked   []domain.RankedPassage
	err      error
}

func (f *rerankerFake) Rerank(ctx context.Context, query string, passages []string, topN int) ([]float64, error) {
	ranked, err := f.RerankWithIndices(ctx, query, passages, topN)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(ranked))
	for i, rank := range ranked {
		scores[i] = rank.Score
	}
	return scores, nil
}

func (f *rerankerFake) RerankWithIndices(_ context.Context, _ string, passages []string, topN int) ([]domain.RankedPassage, error) {
	f.calls++
	f.passages = append([]string(nil), passages...)
	f.topN = topN
	if f.err != nil {
		return nil, f.err
	}
	if f.ranked != nil {
		return f.ranked, nil
	}
	keep := min(topN, len(passages))
	ranked := make([]domain.RankedPassage, 0, keep)
	for i := 0; i < keep; i++ {
		ranked = append(ranked, domain.RankedPassage{Index: i, Score: 1 - float64(i)/10})
	}
	return ranked, nil
}

type graphFake struct {
	calls int
	seeds []string
	hops  int
	facts []domain.GraphFact
	err   error
}

func (f *graphFake) TraverseFromEntities(_ context.Context, entityNames []string, maxHops int) ([]domain.GraphFact, error) {
	f.calls++
	f.seeds = append([]string(nil), entityNames...)
	f.hops = maxHops
	if f.err != nil {
		return nil, f.err
	}
	if f.facts == nil {
		return []domain.GraphFact{}, nil
	}
	return f.facts, nil
}

type generatorFake struct {
	calls  int
	prompt string
	answer string
	delay  time.Duration
	err    error
}

func (f *generatorFake) GenerateFromPrompt(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type pipelineFakes struct {
	embedder  *embedderFake
	searcher  *searcherFake
	reranker  *rerankerFake
	graph     *graphFake
	generator *generatorFake
}

func newPipelineFakes(hits ...domain.Candidate) *pipelineFakes {
	return &pipelineFakes{
		embedder:  &embedderFake{},
		searcher:  &searcherFake{hits: hits},
		reranker:  &rerankerFake{},
		graph:     &graphFake{},
		generator: &generatorFake{answer: "generated answer"},
	}
}

func (f *pipelineFakes) retriever() *HybridRetriever {
	return NewHybridRetriever(f.embedder, f.searcher, f.reranker, f.graph, 0)
}

func (f *pipelineFakes) engine(contextBudget int) *Engine {
	return NewEngine(f.retriever(), f.generator, contextBudget)
}

func (f *pipelineFakes) ask(cfg AskConfig) *AskUseCase {
	return NewAskUseCase(f.engine(0), cfg)
}

func newCandidate(id, url string, entities ...string) domain.Candidate {
	c := domain.Candidate{
		ID:        id,
		Content:   "content " + id,
		Score:     0.5,
		DocID:     "doc-" + id,
		SourceURL: url,
		Section:   "section " + id,
	}
	if len(entities) != 0 {
		values := make([]any, 0, len(entities))
		for _, entity := range entities {
			values = append(values, entity)
		}
		c.Metadata = map[string]any{"entities": values}
	}
	return c
}

func TestRetrieveEmptySearchShortCircuits(t *testing.T) {
	fakes := newPipelineFakes()

	bundle, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 5, RerankTopN: 3})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if bundle.VectorResults == nil || len(bundle.VectorResults) != 0 {
		t.Fatalf("expected empty vector results, got %#v", bundle.VectorResults)
	}
	if bundle.GraphResults == nil || len(bundle.GraphResults) != 0 {
		t.Fatalf("expected empty graph results, got %#v", bundle.GraphResults)
	}
	if fakes.reranker.calls != 0 {
		t.Fatalf("reranker called %d times on empty search", fakes.reranker.calls)
	}
	if fakes.graph.calls != 0 {
		t.Fatalf("graph called %d times on empty search", fakes.graph.calls)
	}
}

func TestRetrieveReassociatesRerankedCandidates(t *testing.T) {
	fakes := newPipelineFakes(
		newCandidate("a", "https://docs/a"),
		newCandidate("b", "https://docs/b"),
		newCandidate("c", "https://docs/c"),
	)
	fakes.reranker.ranked = []domain.RankedPassage{
		{Index: 0, Score: 0.95},
		{Index: 2, Score: 0.6},
	}

	bundle, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 20, RerankTopN: 2})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(fakes.reranker.passages) != 3 {
		t.Fatalf("reranker received %d passages, want 3", len(fakes.reranker.passages))
	}
	if fakes.reranker.topN != 2 {
		t.Fatalf("reranker topN = %d, want 2", fakes.reranker.topN)
	}
	if len(bundle.VectorResults) != 2 {
		t.Fatalf("kept %d candidates, want 2", len(bundle.VectorResults))
	}
	if bundle.VectorResults[0].ID != "a" || bundle.VectorResults[1].ID != "c" {
		t.Fatalf("kept wrong candidates: %s, %s", bundle.VectorResults[0].ID, bundle.VectorResults[1].ID)
	}
	if bundle.VectorResults[0].RerankScore != 0.95 || bundle.VectorResults[1].RerankScore != 0.6 {
		t.Fatalf("rerank scores not carried: %+v", bundle.VectorResults)
	}
}

func TestRetrieveSkipsGraphWithoutEntities(t *testing.T) {
	fakes := newPipelineFakes(newCandidate("a", "https://docs/a"))

	bundle, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 5, RerankTopN: 1})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if fakes.graph.calls != 0 {
		t.Fatalf("graph called %d times with no entities", fakes.graph.calls)
	}
	if len(bundle.GraphResults) != 0 || len(bundle.EntityNames) != 0 {
		t.Fatalf("expected empty graph side, got %+v", bundle)
	}
}

func TestRetrieveCollectsEntitiesFirstSeenDeduplicated(t *testing.T) {
	fakes := newPipelineFakes(
		newCandidate("a", "https://docs/a", "edge-proxy", "billing"),
		newCandidate("b", "https://docs/b", "billing", "edge-proxy", "payments-db"),
	)
	fakes.graph.facts = []domain.GraphFact{
		{StartEntity: "edge-proxy", Relationships: []string{"ROUTES_TO"}, EndEntity: "billing", HopCount: 1},
	}

	bundle, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 5, RerankTopN: 2, MaxGraphHops: 3})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	wantSeeds := []string{"edge-proxy", "billing", "payments-db"}
	if !reflect.DeepEqual(fakes.graph.seeds, wantSeeds) {
		t.Fatalf("graph seeds = %v, want %v", fakes.graph.seeds, wantSeeds)
	}
	if fakes.graph.hops != 3 {
		t.Fatalf("graph hops = %d, want 3", fakes.graph.hops)
	}
	if !reflect.DeepEqual(bundle.EntityNames, wantSeeds) {
		t.Fatalf("entity names = %v, want %v", bundle.EntityNames, wantSeeds)
	}
	if len(bundle.GraphResults) != 1 {
		t.Fatalf("graph results = %+v", bundle.GraphResults)
	}
}

func TestCollectEntityNamesHandlesMetadataShapes(t *testing.T) {
	candidates := []domain.RerankedCandidate{
		{Candidate: domain.Candidate{Metadata: map[string]any{"entities": []string{" edge ", "edge"}}}},
		{Candidate: domain.Candidate{Metadata: map[string]any{"entities": []any{"db", 42, "  "}}}},
		{Candidate: domain.Candidate{Metadata: map[string]any{"entities": "not-a-list"}}},
		{Candidate: domain.Candidate{}},
	}

	got := collectEntityNames(candidates)
	want := []string{"edge", "db"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("collectEntityNames() = %v, want %v", got, want)
	}
}

func TestRetrieveStageErrorsCarryStageTag(t *testing.T) {
	boom := errors.New("boom")

	fakes := newPipelineFakes(newCandidate("a", "https://docs/a"))
	fakes.embedder.err = boom
	if _, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 1, RerankTopN: 1}); err == nil || !strings.Contains(err.Error(), "embed query:") {
		t.Fatalf("embed failure not tagged: %v", err)
	}

	fakes = newPipelineFakes(newCandidate("a", "https://docs/a"))
	fakes.searcher.err = boom
	if _, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 1, RerankTopN: 1}); err == nil || !strings.Contains(err.Error(), "vector search:") {
		t.Fatalf("search failure not tagged: %v", err)
	}

	fakes = newPipelineFakes(newCandidate("a", "https://docs/a"))
	fakes.reranker.err = boom
	if _, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 1, RerankTopN: 1}); err == nil || !strings.Contains(err.Error(), "rerank:") {
		t.Fatalf("rerank failure not tagged: %v", err)
	}
	if fakes.graph.calls != 0 {
		t.Fatalf("graph called after rerank failure")
	}

	fakes = newPipelineFakes(newCandidate("a", "https://docs/a", "edge"))
	fakes.graph.err = boom
	if _, err := fakes.retriever().Retrieve(context.Background(), domain.Query{Text: "q", TopK: 1, RerankTopN: 1}); err == nil || !strings.Contains(err.Error(), "graph traversal:") {
		t.Fatalf("graph failure not tagged: %v", err)
	}
}
