package ports

import (
	"context"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for the single user-facing
// operation: ask a question, get a cited answer.
type QuestionAnswerer interface {
	Execute(ctx context.Context, query domain.Query) (domain.AnswerResult, error)
}
