package jina

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stackatlas/stackatlas/internal/core/domain"
	"github.com/stackatlas/stackatlas/internal/infrastructure/resilience"
)

const (
	defaultBatchSize   = 16
	defaultMaxParallel = 4
)

// Client scores passages against a query via a Jina-compatible cross-encoder
// /rerank endpoint (vLLM, text-embeddings-inference, LocalAI and friends all
// serve this shape).
type Client struct {
	baseURL     string
	model       string
	batchSize   int
	maxParallel int
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	BatchSize      int
	MaxParallel    int
	RequestTimeout time.Duration
	Executor       *resilience.Executor
}

func New(baseURL, model string) *Client {
	return NewWithOptions(baseURL, model, Options{})
}

func NewWithOptions(baseURL, model string, options Options) *Client {
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxParallel := options.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		batchSize:   batchSize,
		maxParallel: maxParallel,
		httpClient:  &http.Client{Timeout: requestTimeout},
		executor:    options.Executor,
	}
}

// Rerank returns the scores of the topN highest-scoring passages, descending.
func (c *Client) Rerank(ctx context.Context, query string, passages []string, topN int) ([]float64, error) {
	ranked, err := c.RerankWithIndices(ctx, query, passages, topN)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(ranked))
	for i, r := range ranked {
		scores[i] = r.Score
	}
	return scores, nil
}

// RerankWithIndices scores every passage and returns the topN as
// (originalIndex, score) pairs ordered by score descending. Equal scores keep
// the original input order. Passages are scored in fixed-size batches purely
// for throughput; every passage is scored, so the batch size never changes
// the final ranking.
func (c *Client) RerankWithIndices(ctx context.Context, query string, passages []string, topN int) ([]domain.RankedPassage, error) {
	if len(passages) == 0 || topN <= 0 {
		return []domain.RankedPassage{}, nil
	}
	if topN > len(passages) {
		topN = len(passages)
	}

	scores, err := c.scoreAll(ctx, query, passages)
	if err != nil {
		return nil, err
	}

	ranked := make([]domain.RankedPassage, len(scores))
	for i, score := range scores {
		ranked[i] = domain.RankedPassage{Index: i, Score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[:topN], nil
}

// scoreAll fans batches out under a bounded semaphore and slots each batch's
// scores back by original position. The first failure cancels the rest.
func (c *Client) scoreAll(ctx context.Context, query string, passages []string) ([]float64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scores := make([]float64, len(passages))
	sem := make(chan struct{}, c.maxParallel)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(passages); start += c.batchSize {
		end := min(start+c.batchSize, len(passages))

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			batchScores, err := c.scoreBatch(ctx, query, passages[start:end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
				return
			}
			copy(scores[start:end], batchScores)
		}(start, end)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return scores, nil
}

func (c *Client) scoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	request := map[string]any{
		"model":     c.model,
		"query":     query,
		"documents": passages,
	}

	var response struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	err := c.execute(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/rerank", request, &response)
	})
	if err != nil {
		return nil, wrapUnavailableIfNeeded(err)
	}

	if len(response.Results) != len(passages) {
		return nil, fmt.Errorf("reranker returned %d scores for %d passages", len(response.Results), len(passages))
	}
	scores := make([]float64, len(passages))
	for _, r := range response.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}

func (c *Client) execute(ctx context.Context, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, "rerank", fn, classifyRerankError)
}
