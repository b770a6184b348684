// Package knowledge answers questions from ingested documents.
//
// Documents are split into semantic chunks, embedded and kept in a
// VectorStore. A query is decomposed into simpler sub-queries which are
// searched concurrently; each result list is reranked and the best passages
// are combined into one context for the knowledge agent.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Statuses reported in results.
const (
	StatusSuccess   = "success"
	StatusNoResults = "no_results"
	StatusError     = "error"
)

// Search defaults.
const (
	DefaultSearchResults = 5
	DefaultTopicResults  = 3
	RerankTopK           = 3
	maxQueries           = 5
)

// decompositionPatterns are applied in order, each to the leading fragment
// left by the previous one.
var decompositionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+and\s+`),
	regexp.MustCompile(`(?i)\s+or\s+`),
	regexp.MustCompile(`(?i)\s+but\s+`),
	regexp.MustCompile(`(?i)\s+however\s+`),
	regexp.MustCompile(`\s*;\s*`),
	regexp.MustCompile(`\s*\.\s*`),
	regexp.MustCompile(`\s*,\s*`),
}

// DecomposeQuery splits a compound question into at most five simpler
// queries. The leading fragment comes first, followed by the split-off
// fragments in the order they were found. A query that does not split is
// returned as is.
func DecomposeQuery(query string) []string {
	var rest []string
	current := query
	for _, p := range decompositionPatterns {
		parts := p.Split(current, -1)
		if len(parts) < 2 {
			continue
		}
		current = parts[0]
		for _, part := range parts[1:] {
			if s := strings.TrimSpace(part); s != "" {
				rest = append(rest, s)
			}
		}
	}

	var queries []string
	if s := strings.TrimSpace(current); s != "" {
		queries = append(queries, s)
	}
	queries = append(queries, rest...)
	if len(queries) == 0 {
		queries = []string{query}
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

// QueryResult holds the documents found for one sub-query.
type QueryResult struct {
	Documents    []string `json:"documents"`
	RerankedText string   `json:"reranked_text"`
	RelevantIDs  []int    `json:"relevant_ids"`
}

// ContextResult is the outcome of GetKnowledgeContext.
type ContextResult struct {
	Status              string                 `json:"status"`
	Error               string                 `json:"error,omitempty"`
	OriginalQuery       string                 `json:"original_query"`
	DecomposedQueries   []string               `json:"decomposed_queries,omitempty"`
	AllQueriesProcessed []string               `json:"all_queries_processed,omitempty"`
	CombinedContext     string                 `json:"combined_context"`
	QueryResults        map[string]QueryResult `json:"query_results,omitempty"`
	TotalDocumentsFound int                    `json:"total_documents_found"`
}

// TopicResult is the outcome of SearchSpecificTopic.
type TopicResult struct {
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	Topic          string `json:"topic"`
	DocumentsFound int    `json:"documents_found"`
	RelevantText   string `json:"relevant_text"`
	DocumentIDs    []int  `json:"document_ids"`
}

// IngestResult reports what Ingest stored.
type IngestResult struct {
	Chunks int      `json:"chunks"`
	IDs    []string `json:"ids"`
}

// Service searches and fills a knowledge base.
type Service struct {
	embedder    EmbeddingProvider
	store       VectorStore
	reranker    Reranker
	chunker     *SemanticChunker
	logger      *slog.Logger
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithReranker replaces the default lexical reranker.
func WithReranker(r Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConcurrency bounds parallel sub-query searches (default 4).
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithBreakpointPercentile sets the chunker's breakpoint percentile.
func WithBreakpointPercentile(p float64) Option {
	return func(s *Service) { s.chunker.Percentile = p }
}

// NewService creates a knowledge service.
func NewService(embedder EmbeddingProvider, store VectorStore, opts ...Option) *Service {
	s := &Service{
		embedder:    embedder,
		store:       store,
		reranker:    LexicalReranker{},
		chunker:     &SemanticChunker{Embedder: embedder},
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchVectorStore returns the contents of the n documents nearest to
// query.
func (s *Service) SearchVectorStore(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultSearchResults
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := s.store.Search(ctx, vector, n)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Content
	}
	return docs, nil
}

// Rerank keeps the min(3, len(docs)) most relevant documents and joins them
// with blank lines. When the reranker fails, every document is kept in
// search order.
func (s *Service) Rerank(ctx context.Context, docs []string, query string) (string, []int) {
	if len(docs) == 0 {
		return "", nil
	}
	ids, err := s.reranker.Rerank(ctx, query, docs, min(RerankTopK, len(docs)))
	if err != nil {
		s.logger.Warn("rerank failed, keeping search order", "query", query, "error", err)
		ids = make([]int, len(docs))
		for i := range ids {
			ids[i] = i
		}
	}

	texts := make([]string, len(ids))
	for i, id := range ids {
		texts[i] = docs[id]
	}
	return strings.Join(texts, "\n\n"), ids
}

// GetKnowledgeContext searches the knowledge base for query and any
// previous queries of the conversation.
func (s *Service) GetKnowledgeContext(ctx context.Context, query string, previous []string) ContextResult {
	decomposed := DecomposeQuery(query)

	seen := make(map[string]bool)
	var queries []string
	for _, q := range append(append([]string{}, decomposed...), previous...) {
		if !seen[q] {
			seen[q] = true
			queries = append(queries, q)
		}
	}

	// A failed query contributes nothing; the others still build the
	// context. Only when all of them fail is the result an error.
	found := make([]*QueryResult, len(queries))
	failed := make([]error, len(queries))
	var g errgroup.Group
	g.SetLimit(max(s.concurrency, 1))
	for i, q := range queries {
		g.Go(func() error {
			docs, err := s.SearchVectorStore(ctx, q, DefaultSearchResults)
			if err != nil {
				s.logger.Warn("knowledge query failed", "query", q, "error", err)
				failed[i] = fmt.Errorf("query %q: %w", q, err)
				return nil
			}
			if len(docs) == 0 {
				return nil
			}
			text, ids := s.Rerank(ctx, docs, q)
			found[i] = &QueryResult{Documents: docs, RerankedText: text, RelevantIDs: ids}
			return nil
		})
	}
	g.Wait()
	if len(queries) > 0 && !slices.Contains(failed, nil) {
		err := errors.Join(failed...)
		s.logger.Error("knowledge search failed", "query", query, "error", err)
		return ContextResult{Status: StatusError, Error: err.Error(), OriginalQuery: query}
	}

	result := ContextResult{
		Status:              StatusSuccess,
		OriginalQuery:       query,
		DecomposedQueries:   decomposed,
		AllQueriesProcessed: queries,
		QueryResults:        make(map[string]QueryResult),
	}
	var texts []string
	for i, r := range found {
		if r == nil {
			continue
		}
		texts = append(texts, r.RerankedText)
		result.QueryResults[queries[i]] = *r
		result.TotalDocumentsFound += len(r.Documents)
	}
	result.CombinedContext = strings.Join(texts, "\n\n")

	s.logger.Debug("knowledge context built", "query", query, "queries", len(queries), "documents", result.TotalDocumentsFound)
	return result
}

// SearchSpecificTopic searches for one topic without decomposition.
func (s *Service) SearchSpecificTopic(ctx context.Context, topic string, n int) TopicResult {
	if n <= 0 {
		n = DefaultTopicResults
	}
	docs, err := s.SearchVectorStore(ctx, topic, n)
	if err != nil {
		s.logger.Error("topic search failed", "topic", topic, "error", err)
		return TopicResult{Status: StatusError, Error: err.Error(), Topic: topic}
	}
	if len(docs) == 0 {
		return TopicResult{Status: StatusNoResults, Topic: topic, DocumentIDs: []int{}}
	}

	text, ids := s.Rerank(ctx, docs, topic)
	return TopicResult{
		Status:         StatusSuccess,
		Topic:          topic,
		DocumentsFound: len(docs),
		RelevantText:   text,
		DocumentIDs:    ids,
	}
}

// Ingest chunks text and stores the chunks as doc-<n>, numbering on from
// the documents already stored.
func (s *Service) Ingest(ctx context.Context, source, text string) (IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return IngestResult{}, errors.New("nothing to ingest: document is empty")
	}

	chunks, err := s.chunker.Chunk(ctx, text)
	if err != nil {
		return IngestResult{}, err
	}
	vectors, err := EmbedAll(ctx, s.embedder, chunks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to embed chunks: %w", err)
	}
	offset, err := s.store.Count(ctx)
	if err != nil {
		return IngestResult{}, err
	}

	docs := make([]Document, len(chunks))
	result := IngestResult{Chunks: len(chunks), IDs: make([]string, len(chunks))}
	for i, c := range chunks {
		id := fmt.Sprintf("doc-%d", offset+i)
		docs[i] = Document{ID: id, Content: c, Embedding: vectors[i], Metadata: map[string]interface{}{"source": source}}
		result.IDs[i] = id
	}
	if err := s.store.Upsert(ctx, docs); err != nil {
		return IngestResult{}, err
	}

	s.logger.Info("document ingested", "source", source, "chunks", len(chunks))
	return result, nil
}
