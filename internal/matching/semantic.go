package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Embedder is what the semantic scorer needs from the cached gateway.
type Embedder interface {
	EmbedText(ctx context.Context, text string, links map[string]string) ([]float32, error)
}

// ChunkingConfig tunes the chunked similarity variant for long documents.
type ChunkingConfig struct {
	// WindowTokens is the fixed window size in whitespace tokens.
	WindowTokens int
	// OverlapTokens is how many tokens adjacent windows share.
	OverlapTokens int
	// TopK is how many of the best per-window maxima are averaged.
	TopK int
}

// DefaultChunking returns the chunking defaults.
func DefaultChunking() ChunkingConfig {
	return ChunkingConfig{WindowTokens: 200, OverlapTokens: 40, TopK: 5}
}

// DefaultNoiseFloor attenuates the similarity range raw embedding cosines
// rarely drop below even for unrelated text. An empirical tunable, not a
// derived constant.
const DefaultNoiseFloor = 0.20

// SemanticScorer computes a shaped cosine similarity between two texts via
// embeddings obtained through the cached gateway.
type SemanticScorer struct {
	embedder   Embedder
	noiseFloor float64
	chunking   ChunkingConfig
	logger     *zap.Logger
}

// NewSemanticScorer creates a scorer. A non-positive noiseFloor falls back to
// the default.
func NewSemanticScorer(embedder Embedder, noiseFloor float64, chunking ChunkingConfig, logger *zap.Logger) *SemanticScorer {
	if noiseFloor <= 0 {
		noiseFloor = DefaultNoiseFloor
	}
	if chunking.WindowTokens <= 0 {
		chunking = DefaultChunking()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SemanticScorer{
		embedder:   embedder,
		noiseFloor: noiseFloor,
		chunking:   chunking,
		logger:     logger,
	}
}

// Similarity returns the shaped similarity in [0,1] between the two texts.
// The second return reports presence: false means the similarity is absent
// (provider outage with required=false) and must be excluded from weighted
// aggregation rather than scored as zero. With required=true a provider
// failure is returned as an error instead.
func (s *SemanticScorer) Similarity(ctx context.Context, resumeText, jobText string, required bool, links map[string]string) (float64, bool, error) {
	if strings.TrimSpace(resumeText) == "" || strings.TrimSpace(jobText) == "" {
		return 0, true, nil
	}

	vectors, err := s.embedAll(ctx, []string{resumeText, jobText}, links)
	if err != nil {
		if !required {
			s.logger.Warn("semantic similarity unavailable, degrading to absent", zap.Error(err))
			return 0, false, nil
		}
		return 0, false, err
	}

	return s.shape(cosine(vectors[0], vectors[1])), true, nil
}

// ChunkedSimilarity splits both texts into overlapping token windows, embeds
// every window, takes for each job-side window the maximum similarity against
// any resume-side window, and averages the top-K maxima before shaping.
func (s *SemanticScorer) ChunkedSimilarity(ctx context.Context, resumeText, jobText string, required bool, links map[string]string) (float64, bool, error) {
	resumeChunks := chunk(resumeText, s.chunking.WindowTokens, s.chunking.OverlapTokens)
	jobChunks := chunk(jobText, s.chunking.WindowTokens, s.chunking.OverlapTokens)

	if len(resumeChunks) == 0 || len(jobChunks) == 0 {
		return 0, true, nil
	}

	all := append(append([]string{}, resumeChunks...), jobChunks...)

	vectors, err := s.embedAll(ctx, all, links)
	if err != nil {
		if !required {
			s.logger.Warn("chunked semantic similarity unavailable, degrading to absent", zap.Error(err))
			return 0, false, nil
		}
		return 0, false, err
	}

	resumeVectors := vectors[:len(resumeChunks)]
	jobVectors := vectors[len(resumeChunks):]

	maxima := make([]float64, 0, len(jobVectors))
	for _, jobVector := range jobVectors {
		best := -1.0
		for _, resumeVector := range resumeVectors {
			if sim := cosine(resumeVector, jobVector); sim > best {
				best = sim
			}
		}
		maxima = append(maxima, best)
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(maxima)))

	topK := s.chunking.TopK
	if topK <= 0 || topK > len(maxima) {
		topK = len(maxima)
	}

	var sum float64
	for _, max := range maxima[:topK] {
		sum += max
	}

	return s.shape(sum / float64(topK)), true, nil
}

// embedAll embeds every text concurrently. Chunks are independent, so there
// is no ordering dependency between the calls.
func (s *SemanticScorer) embedAll(ctx context.Context, texts []string, links map[string]string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			vectors[i], errs[i] = s.embedder.EmbedText(ctx, text, links)
		}(i, text)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
	}

	return vectors, nil
}

// shape maps a raw cosine in [-1,1] to [0,1] and applies the noise floor:
// anything at or below the floor scores 0, the rest is rescaled linearly.
func (s *SemanticScorer) shape(cos float64) float64 {
	normalized := (cos + 1) / 2

	if normalized <= s.noiseFloor {
		return 0
	}

	shaped := (normalized - s.noiseFloor) / (1 - s.noiseFloor)
	return math.Min(1, math.Max(0, shaped))
}

// cosine computes the cosine similarity of two vectors, 0 when either has no
// magnitude or the dimensions disagree.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// chunk splits text into overlapping windows of the given token size. A text
// shorter than one window yields a single chunk.
func chunk(text string, windowTokens, overlapTokens int) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	if windowTokens <= 0 {
		windowTokens = DefaultChunking().WindowTokens
	}
	if overlapTokens < 0 || overlapTokens >= windowTokens {
		overlapTokens = 0
	}

	step := windowTokens - overlapTokens

	var chunks []string
	for start := 0; start < len(fields); start += step {
		end := start + windowTokens
		if end > len(fields) {
			end = len(fields)
		}
		chunks = append(chunks, strings.Join(fields[start:end], " "))
		if end == len(fields) {
			break
		}
	}

	return chunks
}
