package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stackatlas/stackatlas/internal/config"
	"github.com/stackatlas/stackatlas/internal/core/domain"
	"github.com/stackatlas/stackatlas/internal/observability/metrics"
)

type askFake struct {
	calls  int
	query  domain.Query
	result domain.AnswerResult
	err    error
}

func (f *askFake) Execute(_ context.Context, query domain.Query) (domain.AnswerResult, error) {
	f.calls++
	f.query = query
	if f.err != nil {
		return domain.AnswerResult{}, f.err
	}
	return f.result, nil
}

func newAskHandler(cfg config.Config, fake *askFake) http.Handler {
	return NewRouter(cfg, fake, metrics.NewHTTPServerMetrics("test")).Handler()
}

func postAsk(t *testing.T, handler http.Handler, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAskReturnsAnswerResult(t *testing.T) {
	fake := &askFake{result: domain.AnswerResult{
		Answer:      "the edge proxy routes billing [1]\n\nSources:\n[1] section a (https://docs/a)",
		Sources:     []domain.Citation{{Index: 1, Title: "section a", URL: "https://docs/a"}},
		LatencyMS:   42,
		VectorCount: 2,
		GraphCount:  1,
	}}
	handler := newAskHandler(config.Config{}, fake)

	res := postAsk(t, handler, map[string]any{"question": "who routes billing?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var got domain.AnswerResult
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.VectorCount != 2 || got.GraphCount != 1 || len(got.Sources) != 1 {
		t.Fatalf("result not round-tripped: %+v", got)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAskPassesFiltersThrough(t *testing.T) {
	fake := &askFake{}
	handler := newAskHandler(config.Config{}, fake)

	res := postAsk(t, handler, map[string]any{
		"question":       "q",
		"top_k":          12,
		"rerank_top_n":   4,
		"source_types":   []string{"haproxy", "nginx"},
		"after":          "2026-01-02T15:04:05Z",
		"max_graph_hops": 3,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	query := fake.query
	if query.TopK != 12 || query.RerankTopN != 4 || query.MaxGraphHops != 3 {
		t.Fatalf("numeric fields lost: %+v", query)
	}
	if len(query.SourceTypes) != 2 || query.SourceTypes[0] != "haproxy" {
		t.Fatalf("source types lost: %v", query.SourceTypes)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if query.After == nil || !query.After.Equal(want) {
		t.Fatalf("after filter lost: %v", query.After)
	}
}

func TestAskMapsInvalidArgumentTo400(t *testing.T) {
	fake := &askFake{err: domain.WrapError(domain.ErrInvalidArgument, "ask", errors.New("query text is blank"))}
	handler := newAskHandler(config.Config{}, fake)

	res := postAsk(t, handler, map[string]any{"question": "   "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskMapsUpstreamUnavailableTo503(t *testing.T) {
	fake := &askFake{err: domain.WrapError(domain.ErrUpstreamUnavailable, "rerank batch", errors.New("dial tcp: connection refused"))}
	handler := newAskHandler(config.Config{}, fake)

	res := postAsk(t, handler, map[string]any{"question": "q"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestAskMapsUnknownErrorTo500(t *testing.T) {
	fake := &askFake{err: errors.New("boom")}
	handler := newAskHandler(config.Config{}, fake)

	res := postAsk(t, handler, map[string]any{"question": "q"})
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
}

func TestAskRejectsMalformedRequests(t *testing.T) {
	fake := &askFake{}
	handler := newAskHandler(config.Config{}, fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/ask", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{not json"))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", res.Code)
	}

	res = postAsk(t, handler, map[string]any{"question": "q", "after": "yesterday"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad after timestamp, got %d", res.Code)
	}

	if fake.calls != 0 {
		t.Fatalf("use case called %d times for malformed requests", fake.calls)
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	handler := newAskHandler(config.Config{}, &askFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "atlas_http_requests_total") {
		t.Fatalf("metrics exposition missing request counter:\n%s", res.Body.String())
	}
}
