package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/stackatlas/stackatlas/internal/config"
	"github.com/stackatlas/stackatlas/internal/core/ports"
	"github.com/stackatlas/stackatlas/internal/core/usecase"
	"github.com/stackatlas/stackatlas/internal/infrastructure/graph/neo4j"
	"github.com/stackatlas/stackatlas/internal/infrastructure/llm/ollama"
	"github.com/stackatlas/stackatlas/internal/infrastructure/rerank/jina"
	"github.com/stackatlas/stackatlas/internal/infrastructure/resilience"
	"github.com/stackatlas/stackatlas/internal/infrastructure/vector/qdrant"
	"github.com/stackatlas/stackatlas/internal/observability/logging"
	"github.com/stackatlas/stackatlas/internal/observability/metrics"
)

// App holds every long-lived handle: the four external clients behind the ask
// use case, plus the write-side graph port the ingestion subsystem consumes.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	AskUC       ports.QuestionAnswerer
	GraphWriter ports.GraphWriter

	closeFn func(context.Context) error
}

// New wires logger, metrics, the resilience executor and the external clients
// into the ask pipeline. The clients dial lazily, so construction succeeds
// without any upstream being reachable; a dry-run Execute exercises exactly
// this path.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	return NewWithLogSink(ctx, cfg, service, os.Stdout)
}

// NewWithLogSink is New with an explicit log destination. The MCP entrypoint
// owns stdout for the protocol stream and passes stderr here.
func NewWithLogSink(_ context.Context, cfg config.Config, service string, logSink io.Writer) (*App, error) {
	logger := logging.NewJSONLoggerTo(logSink, service, cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.Config{
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(cfg.BreakerMinRequests),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSec) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(cfg.BreakerHalfOpenMaxCalls),
	})

	graphClient, err := neo4j.New(cfg.Neo4jURI, cfg.Neo4jUsername, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		return nil, err
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantVectorSize)

	reranker := jina.NewWithOptions(cfg.RerankerURL, cfg.RerankerModel, jina.Options{
		BatchSize:   cfg.RerankerBatchSize,
		MaxParallel: cfg.RerankerParallel,
		Executor:    executor,
	})

	retriever := usecase.NewHybridRetriever(
		embedder, vectorDB, reranker, graphClient,
		time.Duration(cfg.QAStageTimeoutMS)*time.Millisecond,
	)
	engine := usecase.NewEngine(retriever, generator, cfg.QAContextBudget)
	askUC := usecase.NewAskUseCase(engine, usecase.AskConfig{
		DefaultTopK:       cfg.QATopK,
		DefaultRerankTopN: cfg.QARerankTopN,
		DefaultMaxHops:    cfg.QAMaxGraphHops,
		DryRun:            cfg.QADryRun,
	}, graphClient.Close)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.NewHTTPServerMetrics(service),
		AskUC:       askUC,
		GraphWriter: graphClient,
		closeFn:     askUC.Close,
	}, nil
}

// Close releases every external client handle. Safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	if a.closeFn == nil {
		return nil
	}
	return a.closeFn(ctx)
}
