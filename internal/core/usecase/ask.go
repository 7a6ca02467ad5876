package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

const (
	fallbackTopK        = 10
	fallbackRerankTopN  = 5
	defaultMaxGraphHops = 2
)

// AskConfig carries the per-query defaults the façade applies before
// handing the query to the engine.
type AskConfig struct {
	DefaultTopK       int
	DefaultRerankTopN int
	DefaultMaxHops    int

	// DryRun validates input and constructs resources but performs no
	// network call, returning an explicit empty result. Configuration
	// smoke tests run in this mode.
	DryRun bool
}

// AskUseCase is the single user-facing operation: validate, apply defaults,
// answer. It owns the shared client handles for the whole process lifetime
// and releases them exactly once through Close.
type AskUseCase struct {
	engine    *Engine
	cfg       AskConfig
	closers   []func(context.Context) error
	closeOnce sync.Once
	closeErr  error
}

func NewAskUseCase(engine *Engine, cfg AskConfig, closers ...func(context.Context) error) *AskUseCase {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = fallbackTopK
	}
	if cfg.DefaultRerankTopN <= 0 {
		cfg.DefaultRerankTopN = fallbackRerankTopN
	}
	if cfg.DefaultMaxHops <= 0 {
		cfg.DefaultMaxHops = defaultMaxGraphHops
	}
	return &AskUseCase{
		engine:  engine,
		cfg:     cfg,
		closers: closers,
	}
}

func (uc *AskUseCase) Execute(ctx context.Context, query domain.Query) (domain.AnswerResult, error) {
	if strings.TrimSpace(query.Text) == "" {
		return domain.AnswerResult{}, domain.WrapError(domain.ErrInvalidArgument, "ask", errors.New("query text is blank"))
	}

	query = uc.applyDefaults(query)

	if uc.cfg.DryRun || query.DryRun {
		return domain.AnswerResult{Sources: []domain.Citation{}}, nil
	}

	return uc.engine.Answer(ctx, query)
}

func (uc *AskUseCase) applyDefaults(query domain.Query) domain.Query {
	if query.TopK <= 0 {
		query.TopK = uc.cfg.DefaultTopK
	}
	if query.RerankTopN <= 0 {
		query.RerankTopN = uc.cfg.DefaultRerankTopN
	}
	// Reranking only selects among vector-search candidates.
	if query.RerankTopN > query.TopK {
		query.RerankTopN = query.TopK
	}
	if query.MaxGraphHops <= 0 {
		query.MaxGraphHops = uc.cfg.DefaultMaxHops
	}
	return query
}

// Close releases every client handle exactly once. Later calls return the
// first result.
func (uc *AskUseCase) Close(ctx context.Context) error {
	uc.closeOnce.Do(func() {
		for _, closeClient := range uc.closers {
			if err := closeClient(ctx); err != nil {
				uc.closeErr = errors.Join(uc.closeErr, err)
			}
		}
	})
	return uc.closeErr
}
