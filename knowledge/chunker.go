package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// DefaultBreakpointPercentile is the distance percentile above which the
// chunker starts a new chunk.
const DefaultBreakpointPercentile = 95

var sentenceEnd = regexp.MustCompile(`[.?!]\s+`)

// SplitSentences splits text after ".", "?" or "!" followed by whitespace.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// SemanticChunker groups consecutive sentences into chunks, starting a new
// chunk where the embedding distance between neighbouring sentences is
// unusually large.
type SemanticChunker struct {
	Embedder EmbeddingProvider
	// Percentile of adjacent distances used as the breakpoint threshold
	// (default 95).
	Percentile float64
}

// Chunk splits text into semantically coherent chunks.
//
// Each sentence is embedded together with its neighbours. A breakpoint
// follows sentence i when the cosine distance between windows i and i+1
// exceeds the configured percentile of all adjacent distances.
func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	sentences := SplitSentences(text)
	if len(sentences) < 2 {
		return sentences, nil
	}

	windows := make([]string, len(sentences))
	for i := range sentences {
		lo, hi := max(i-1, 0), min(i+2, len(sentences))
		windows[i] = strings.Join(sentences[lo:hi], " ")
	}
	vectors, err := EmbedAll(ctx, c.Embedder, windows)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sentences: %w", err)
	}

	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - CosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold := breakpointThreshold(distances, c.percentile())

	var chunks []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	return append(chunks, strings.Join(sentences[start:], " ")), nil
}

func (c *SemanticChunker) percentile() float64 {
	if c.Percentile <= 0 || c.Percentile > 100 {
		return DefaultBreakpointPercentile
	}
	return c.Percentile
}

func breakpointThreshold(distances []float64, percentile float64) float64 {
	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)
	return stat.Quantile(percentile/100, stat.LinInterp, sorted, nil)
}
