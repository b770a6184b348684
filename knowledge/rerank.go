package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/scttfrdmn/catering-agent-go/adapter/llm"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Reranker orders candidate documents by relevance to a query.
type Reranker interface {
	// Rerank returns the indexes of the topK most relevant documents, most
	// relevant first.
	Rerank(ctx context.Context, query string, docs []string, topK int) ([]int, error)
}

func topIndexes(scores []float64, topK int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if topK < len(idx) {
		idx = idx[:topK]
	}
	return idx
}

// LexicalReranker scores documents by the share of distinct query words they
// contain. Ties keep search order.
type LexicalReranker struct{}

// Rerank implements Reranker.
func (LexicalReranker) Rerank(ctx context.Context, query string, docs []string, topK int) ([]int, error) {
	terms := make(map[string]bool)
	for _, w := range Tokenize(query) {
		terms[w] = true
	}

	scores := make([]float64, len(docs))
	for i, d := range docs {
		if len(terms) == 0 {
			break
		}
		seen := make(map[string]bool)
		for _, w := range Tokenize(d) {
			if terms[w] {
				seen[w] = true
			}
		}
		scores[i] = float64(len(seen)) / float64(len(terms))
	}
	return topIndexes(scores, topK), nil
}

var scorePattern = regexp.MustCompile(`\d+(\.\d+)?`)

// LLMReranker asks a model to score each document from 0 to 10. Documents
// are scored concurrently.
type LLMReranker struct {
	Model llm.LLM
	// Concurrency bounds parallel scoring calls (default 4).
	Concurrency int
}

// Rerank implements Reranker.
func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []string, topK int) ([]int, error) {
	limit := r.Concurrency
	if limit <= 0 {
		limit = 4
	}

	scores := make([]float64, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, d := range docs {
		g.Go(func() error {
			prompt := fmt.Sprintf("Rate how relevant the passage is to the query on a scale from 0 to 10. Reply with the number only.\n\nQuery: %s\n\nPassage: %s", query, d)
			resp, err := r.Model.Complete(gctx, []*agenkit.Message{agenkit.NewMessage(agenkit.RoleUser, prompt)},
				llm.WithTemperature(0))
			if err != nil {
				return fmt.Errorf("rerank document %d: %w", i, err)
			}
			m := scorePattern.FindString(strings.TrimSpace(resp.Content))
			if m == "" {
				return fmt.Errorf("rerank document %d: no score in %q", i, resp.Content)
			}
			scores[i], _ = strconv.ParseFloat(m, 64)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return topIndexes(scores, topK), nil
}
