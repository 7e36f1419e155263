package matching

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spigell/resume-refiner/internal/ai"
)

// stubEmbedder returns fixed vectors keyed by substring match and counts
// calls, standing in for the cached gateway.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int64
}

func (s *stubEmbedder) EmbedText(_ context.Context, text string, _ map[string]string) ([]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	for substr, vector := range s.vectors {
		if strings.Contains(text, substr) {
			return vector, nil
		}
	}
	return []float32{1, 0, 0}, nil
}

func newTestScorer(embedder Embedder) *SemanticScorer {
	return NewSemanticScorer(embedder, DefaultNoiseFloor, DefaultChunking(), nil)
}

func TestSimilarityEmptyTextIsZero(t *testing.T) {
	scorer := newTestScorer(&stubEmbedder{})

	value, present, err := scorer.Similarity(context.Background(), "", "job text", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !present || value != 0 {
		t.Fatalf("expected present zero for empty text, got %v present=%v", value, present)
	}
}

func TestSimilarityIdenticalVectorsShapeToOne(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"resume": {0.6, 0.8, 0},
		"job":    {0.6, 0.8, 0},
	}}
	scorer := newTestScorer(embedder)

	value, present, err := scorer.Similarity(context.Background(), "resume body", "job body", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected semantic component to be present")
	}
	if !almostEqual(value, 1.0) {
		t.Fatalf("identical embeddings should shape to 1.0, got %v", value)
	}
}

func TestSimilarityNoiseFloorZeroesOpposedVectors(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"resume": {1, 0, 0},
		"job":    {-1, 0, 0},
	}}
	scorer := newTestScorer(embedder)

	value, _, err := scorer.Similarity(context.Background(), "resume body", "job body", false, nil)
	if err != nil {
		t.Fatal(err)
	}

	// cos=-1 normalizes to 0, which is under the floor.
	if value != 0 {
		t.Fatalf("expected shaped 0, got %v", value)
	}
}

func TestSimilarityOrthogonalVectorsShapedByFloor(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"resume": {1, 0, 0},
		"job":    {0, 1, 0},
	}}
	scorer := newTestScorer(embedder)

	value, _, err := scorer.Similarity(context.Background(), "resume body", "job body", false, nil)
	if err != nil {
		t.Fatal(err)
	}

	// cos=0 normalizes to 0.5; shaped (0.5-0.2)/0.8 = 0.375.
	if !almostEqual(value, 0.375) {
		t.Fatalf("expected 0.375, got %v", value)
	}
}

func TestSimilarityOutageDegradesToAbsent(t *testing.T) {
	embedder := &stubEmbedder{err: ai.ErrProviderUnavailable}
	scorer := newTestScorer(embedder)

	value, present, err := scorer.Similarity(context.Background(), "resume", "job", false, nil)
	if err != nil {
		t.Fatalf("unrequired similarity must not error, got %v", err)
	}
	if present {
		t.Fatal("expected absent semantic component")
	}
	if value != 0 {
		t.Fatalf("absent similarity value should be zero, got %v", value)
	}
}

func TestSimilarityOutageWithRequiredFails(t *testing.T) {
	embedder := &stubEmbedder{err: ai.ErrProviderUnavailable}
	scorer := newTestScorer(embedder)

	_, _, err := scorer.Similarity(context.Background(), "resume", "job", true, nil)
	if !errors.Is(err, ai.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable error, got %v", err)
	}
}

func TestChunkOverlappingWindows(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	text := strings.Join(words, " ")

	chunks := chunk(text, 4, 2)

	// Stepping by window-overlap = 2; the walk stops once a window reaches
	// the end of the text.
	expected := []string{"a b c d", "c d e f", "e f g h", "g h i j"}
	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d: %v", len(expected), len(chunks), chunks)
	}
	for i, want := range expected {
		if chunks[i] != want {
			t.Fatalf("chunk %d: expected %q, got %q", i, want, chunks[i])
		}
	}
}

func TestChunkShortTextSingleWindow(t *testing.T) {
	chunks := chunk("just three words", 100, 20)
	if len(chunks) != 1 || chunks[0] != "just three words" {
		t.Fatalf("expected single chunk, got %v", chunks)
	}
}

func TestChunkedSimilarityEmbedsEveryWindow(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{"": {1, 0, 0}}}
	scorer := NewSemanticScorer(embedder, DefaultNoiseFloor, ChunkingConfig{WindowTokens: 2, OverlapTokens: 0, TopK: 2}, nil)

	value, present, err := scorer.ChunkedSimilarity(context.Background(),
		"one two three four", "five six seven eight", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected semantic component to be present")
	}

	// 2 resume windows + 2 job windows.
	if embedder.calls.Load() != 4 {
		t.Fatalf("expected 4 embed calls, got %d", embedder.calls.Load())
	}

	// All vectors identical, so every maximum is 1 and the shaped average is 1.
	if !almostEqual(value, 1.0) {
		t.Fatalf("expected shaped 1.0, got %v", value)
	}
}

func TestCosineGuards(t *testing.T) {
	if cosine(nil, nil) != 0 {
		t.Fatal("empty vectors should score 0")
	}
	if cosine([]float32{1, 2}, []float32{1}) != 0 {
		t.Fatal("mismatched dimensions should score 0")
	}
	if cosine([]float32{0, 0}, []float32{1, 1}) != 0 {
		t.Fatal("zero magnitude should score 0")
	}
}
