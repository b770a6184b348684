package knowledge

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"github.com/scttfrdmn/catering-agent-go/adapter/llm"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	// Embed generates an embedding for text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the embedding dimension, or 0 when it is only known
	// after the first call.
	Dimension() int
}

// BatchEmbedder is implemented by providers that embed many texts in one
// request.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedAll embeds texts, in one request when the provider supports it.
func EmbedAll(ctx context.Context, p EmbeddingProvider, texts []string) ([][]float64, error) {
	if b, ok := p.(BatchEmbedder); ok {
		return b.EmbedBatch(ctx, texts)
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// OpenAIEmbedder embeds text with the OpenAI or Azure OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIEmbedder creates an embedder for api.openai.com. An empty model
// uses text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: openai.EmbeddingModel(model)}
}

// NewAzureOpenAIEmbedder creates an embedder for an Azure OpenAI embedding
// deployment. cfg.Deployment names the embedding deployment.
func NewAzureOpenAIEmbedder(cfg llm.AzureConfig) (*OpenAIEmbedder, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, errors.New("azure openai embeddings: endpoint and deployment are required")
	}
	config := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		config.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	config.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(deployment),
	}, nil
}

// Embed implements EmbeddingProvider.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch implements BatchEmbedder.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = toFloat64(d.Embedding)
	}
	e.dim = len(out[0])
	return out, nil
}

// Dimension implements EmbeddingProvider.
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder creates a Gemini embedder. An empty model uses
// text-embedding-004.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key required: set GEMINI_API_KEY or GOOGLE_API_KEY")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed implements EmbeddingProvider.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := g.client.EmbeddingModel(g.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings error: %w", err)
	}
	if res.Embedding == nil {
		return nil, errors.New("gemini embeddings: empty response")
	}
	v := toFloat64(res.Embedding.Values)
	g.dim = len(v)
	return v, nil
}

// EmbedBatch implements BatchEmbedder.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	em := g.client.EmbeddingModel(g.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings error: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(res.Embeddings), len(texts))
	}
	out := make([][]float64, len(texts))
	for i, e := range res.Embeddings {
		out[i] = toFloat64(e.Values)
	}
	g.dim = len(out[0])
	return out, nil
}

// Dimension implements EmbeddingProvider.
func (g *GeminiEmbedder) Dimension() int { return g.dim }

// Close closes the underlying client.
func (g *GeminiEmbedder) Close() error { return g.client.Close() }

// HashEmbedder is a local bag-of-words embedder: each lowercased word is
// hashed into one of Dim buckets. It needs no network and is used when no
// embedding provider is configured.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder creates a hash embedder with dim buckets (default 256).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{Dim: dim}
}

// Embed implements EmbeddingProvider.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	v := make([]float64, h.Dim)
	for _, w := range Tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[f.Sum32()%uint32(h.Dim)]++
	}
	return v, nil
}

// Dimension implements EmbeddingProvider.
func (h *HashEmbedder) Dimension() int { return h.Dim }

// Tokenize lowercases text and splits it into words of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
