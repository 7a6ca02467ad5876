package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackatlas/stackatlas/internal/core/domain"
	"github.com/stackatlas/stackatlas/internal/core/ports"
)

// defaultContextBudget caps the assembled context string in bytes so the
// prompt cannot grow without bound when candidates carry large chunks.
const defaultContextBudget = 16384

const answerPromptTemplate = `Answer the user question only from the context below.
Cite supporting context inline as [n], using the bracketed block numbers.
If the context is insufficient, say it directly.

Question:
%s

Context:
%s
`

// Engine turns one query into a cited answer: retrieve, assemble a bounded
// prompt, synthesize, attach the source list and latency accounting.
//
// Citation indices are assigned before the LLM call — distinct source URLs
// numbered from 1 in first-occurrence order, duplicates reusing the earlier
// index — and are never renumbered afterward, so inline markers always agree
// with the trailing source list.
type Engine struct {
	retriever     *HybridRetriever
	generator     ports.AnswerGenerator
	contextBudget int
}

func NewEngine(retriever *HybridRetriever, generator ports.AnswerGenerator, contextBudget int) *Engine {
	if contextBudget <= 0 {
		contextBudget = defaultContextBudget
	}
	return &Engine{
		retriever:     retriever,
		generator:     generator,
		contextBudget: contextBudget,
	}
}

func (e *Engine) Answer(ctx context.Context, query domain.Query) (domain.AnswerResult, error) {
	started := time.Now()

	bundle, err := e.retriever.Retrieve(ctx, query)
	retrievalMS := time.Since(started).Milliseconds()
	if err != nil {
		return domain.AnswerResult{}, err
	}

	citations, blockIndices := assignCitations(bundle.VectorResults)
	contextBlock := buildContextBlock(bundle.VectorResults, blockIndices, e.contextBudget)
	prompt := buildAnswerPrompt(query.Text, contextBlock, bundle.GraphResults)

	// An empty bundle still goes to the model: it answers from an empty
	// context instead of the engine inventing a canned response.
	synthesisStarted := time.Now()
	rawAnswer, err := e.generator.GenerateFromPrompt(ctx, prompt)
	synthesisMS := time.Since(synthesisStarted).Milliseconds()
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("synthesize answer: %w", err)
	}

	return domain.AnswerResult{
		Answer:      appendSourcesBlock(rawAnswer, citations),
		Sources:     citations,
		LatencyMS:   time.Since(started).Milliseconds(),
		Breakdown:   domain.LatencyBreakdown{RetrievalMS: retrievalMS, SynthesisMS: synthesisMS},
		VectorCount: len(bundle.VectorResults),
		GraphCount:  len(bundle.GraphResults),
	}, nil
}

// assignCitations numbers the distinct source URLs of the kept candidates in
// first-occurrence order and returns, alongside the citation list, the
// citation index of every candidate position.
func assignCitations(candidates []domain.RerankedCandidate) ([]domain.Citation, []int) {
	citations := make([]domain.Citation, 0, len(candidates))
	blockIndices := make([]int, len(candidates))
	indexByURL := make(map[string]int, len(candidates))

	for i, candidate := range candidates {
		if index, ok := indexByURL[candidate.SourceURL]; ok {
			blockIndices[i] = index
			continue
		}
		index := len(citations) + 1
		indexByURL[candidate.SourceURL] = index
		citations = append(citations, domain.Citation{
			Index: index,
			Title: citationTitle(candidate.Candidate),
			URL:   candidate.SourceURL,
		})
		blockIndices[i] = index
	}
	return citations, blockIndices
}

func citationTitle(candidate domain.Candidate) string {
	if title, ok := candidate.Metadata["title"].(string); ok && title != "" {
		return title
	}
	if candidate.Section != "" {
		return candidate.Section
	}
	return candidate.DocID
}

// buildContextBlock renders one block per kept candidate, labeled with the
// candidate's citation index. The result is capped at budget bytes: a block
// that would overflow is cut to fit and assembly stops there.
func buildContextBlock(candidates []domain.RerankedCandidate, blockIndices []int, budget int) string {
	var b strings.Builder
	for i, candidate := range candidates {
		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		block := fmt.Sprintf("[%d] (%s - %s):\n%s\n", blockIndices[i], candidate.SourceURL, candidate.Section, candidate.Content)
		if len(block) > remaining {
			b.WriteString(block[:remaining])
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

func buildAnswerPrompt(question, contextBlock string, facts []domain.GraphFact) string {
	prompt := fmt.Sprintf(answerPromptTemplate, question, contextBlock)
	if len(facts) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\nGraph facts:\n")
	for _, fact := range facts {
		b.WriteString(fmt.Sprintf("- %s -[%s]- %s hops=%d\n",
			fact.StartEntity, strings.Join(fact.Relationships, "|"), fact.EndEntity, fact.HopCount))
	}
	return b.String()
}

func appendSourcesBlock(answer string, citations []domain.Citation) string {
	if len(citations) == 0 {
		return answer
	}

	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\nSources:\n")
	for i, citation := range citations {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(fmt.Sprintf("[%d] %s (%s)", citation.Index, citation.Title, citation.URL))
	}
	return b.String()
}
