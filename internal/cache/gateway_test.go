package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spigell/resume-refiner/internal/ai"
)

type stubProvider struct {
	generateCalls atomic.Int64
	embedCalls    atomic.Int64
	generateText  string
	embedVector   []float32
	err           error
}

func (s *stubProvider) Name() string           { return "stub" }
func (s *stubProvider) Model() string          { return "stub-model" }
func (s *stubProvider) EmbeddingModel() string { return "stub-embedding" }

func (s *stubProvider) Generate(_ context.Context, _ string, _ *ai.GenerateOptions) (*ai.GenerateResult, error) {
	s.generateCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResult{Text: s.generateText, Usage: ai.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func (s *stubProvider) Embed(_ context.Context, _ string) (*ai.EmbedResult, error) {
	s.embedCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &ai.EmbedResult{Vector: s.embedVector}, nil
}

func newTestGateway(t *testing.T, provider ai.Provider) *Gateway {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "gateway_test.db"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewGateway(store, provider, time.Hour, nil)
}

func TestGenerateTextCachesRepeatCalls(t *testing.T) {
	provider := &stubProvider{generateText: "rewritten"}
	gateway := newTestGateway(t, provider)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		text, err := gateway.GenerateText(ctx, ai.StrategyFreeText, "rewrite my resume", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if text != "rewritten" {
			t.Fatalf("unexpected text: %q", text)
		}
	}

	if provider.generateCalls.Load() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.generateCalls.Load())
	}
}

func TestGenerateTextOptionsChangeFingerprint(t *testing.T) {
	provider := &stubProvider{generateText: "rewritten"}
	gateway := newTestGateway(t, provider)
	ctx := context.Background()

	if _, err := gateway.GenerateText(ctx, ai.StrategyFreeText, "prompt", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := gateway.GenerateText(ctx, ai.StrategyFreeText, "prompt", &ai.GenerateOptions{Temperature: 0.9}, nil); err != nil {
		t.Fatal(err)
	}

	if provider.generateCalls.Load() != 2 {
		t.Fatalf("different options must not share a cache entry, got %d calls", provider.generateCalls.Load())
	}
}

func TestEmbedTextCachesRepeatCalls(t *testing.T) {
	provider := &stubProvider{embedVector: []float32{0.5, -0.5, 1}}
	gateway := newTestGateway(t, provider)
	ctx := context.Background()

	first, err := gateway.EmbedText(ctx, "resume text", map[string]string{"resume": "r1"})
	if err != nil {
		t.Fatal(err)
	}

	second, err := gateway.EmbedText(ctx, "resume text", map[string]string{"resume": "r1"})
	if err != nil {
		t.Fatal(err)
	}

	if provider.embedCalls.Load() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.embedCalls.Load())
	}

	if len(first) != 3 || first[0] != second[0] || first[2] != second[2] {
		t.Fatalf("hit returned different vector: %v vs %v", first, second)
	}
}

func TestProviderErrorsAreNeverCached(t *testing.T) {
	provider := &stubProvider{err: ai.ErrProviderUnavailable}
	gateway := newTestGateway(t, provider)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := gateway.EmbedText(ctx, "text", nil)
		if !errors.Is(err, ai.ErrProviderUnavailable) {
			t.Fatalf("expected provider unavailable, got %v", err)
		}
	}

	if provider.embedCalls.Load() != 2 {
		t.Fatalf("failures must not be cached, got %d calls", provider.embedCalls.Load())
	}
}
