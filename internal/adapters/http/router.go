package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stackatlas/stackatlas/internal/config"
	"github.com/stackatlas/stackatlas/internal/core/domain"
	"github.com/stackatlas/stackatlas/internal/core/ports"
	"github.com/stackatlas/stackatlas/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg        config.Config
	answerer   ports.QuestionAnswerer
	srvMetrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, answerer ports.QuestionAnswerer, srvMetrics *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:        cfg,
		answerer:   answerer,
		srvMetrics: srvMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.srvMetrics.Handler())
	mux.HandleFunc("/v1/ask", rt.handleAsk)

	var handler http.Handler = mux
	if rt.cfg.APIMaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	handler = rt.srvMetrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question     string   `json:"question"`
	TopK         int      `json:"top_k"`
	RerankTopN   int      `json:"rerank_top_n"`
	SourceTypes  []string `json:"source_types"`
	After        string   `json:"after"`
	MaxGraphHops int      `json:"max_graph_hops"`
	DryRun       bool     `json:"dry_run"`
}

func (req askRequest) toQuery() (domain.Query, error) {
	query := domain.Query{
		Text:         req.Question,
		TopK:         req.TopK,
		RerankTopN:   req.RerankTopN,
		SourceTypes:  req.SourceTypes,
		MaxGraphHops: req.MaxGraphHops,
		DryRun:       req.DryRun,
	}
	if req.After != "" {
		after, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return domain.Query{}, fmt.Errorf("after must be an RFC 3339 timestamp: %w", err)
		}
		query.After = &after
	}
	return query, nil
}

func (rt *Router) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	query, err := req.toQuery()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := rt.answerer.Execute(r.Context(), query)
	if err != nil {
		rt.srvMetrics.RecordAskFailure(serviceName, err)
		slog.Error("ask_failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err.Error(),
		)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.srvMetrics.RecordAskObservation(serviceName, result)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
