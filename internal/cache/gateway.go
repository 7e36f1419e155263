package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/ai"
	"github.com/spigell/resume-refiner/internal/metrics"
)

// Gateway wraps an ai.Provider with the Store so that repeated identical
// requests within the TTL window never re-invoke the provider. All provider
// calls made by the matching engine and the refinement loop go through here.
type Gateway struct {
	store    *Store
	provider ai.Provider
	ttl      time.Duration
	logger   *zap.Logger
}

// NewGateway creates a cached gateway in front of the provider.
func NewGateway(store *Store, provider ai.Provider, ttl time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		store:    store,
		provider: provider,
		ttl:      ttl,
		logger:   logger,
	}
}

// Provider returns the wrapped provider.
func (g *Gateway) Provider() ai.Provider {
	return g.provider
}

// generatePayload is the exact request payload fingerprinted for a
// text-generation call. Field order is fixed by the struct, so the
// serialization is deterministic.
type generatePayload struct {
	Prompt  string              `json:"prompt"`
	Options *ai.GenerateOptions `json:"options,omitempty"`
}

type cachedGeneration struct {
	Text  string   `json:"text"`
	Usage ai.Usage `json:"usage"`
}

type cachedEmbedding struct {
	Vector []float32 `json:"vector"`
	Usage  ai.Usage  `json:"usage"`
}

// GenerateText runs a text-generation call through the cache under the given
// strategy. Entity links are attached when the entry is first created.
func (g *Gateway) GenerateText(ctx context.Context, strategy, prompt string, opts *ai.GenerateOptions, links map[string]string) (string, error) {
	payload, err := json.Marshal(generatePayload{Prompt: prompt, Options: opts})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	raw, err := g.store.GetOrCompute(ctx, g.provider.Model(), strategy, string(payload), g.ttl, links,
		func(ctx context.Context) (*Computed, error) {
			result, err := g.provider.Generate(ctx, prompt, opts)
			if err != nil {
				return nil, err
			}

			metrics.RecordTokenUsage(g.provider.Name(), g.provider.Model(),
				result.Usage.PromptTokens, result.Usage.CompletionTokens)

			response, err := json.Marshal(cachedGeneration{Text: result.Text, Usage: result.Usage})
			if err != nil {
				return nil, fmt.Errorf("marshal generation: %w", err)
			}

			return &Computed{
				Response:  response,
				TokensIn:  result.Usage.PromptTokens,
				TokensOut: result.Usage.CompletionTokens,
			}, nil
		})
	if err != nil {
		return "", err
	}

	var cached cachedGeneration
	if err := json.Unmarshal(raw, &cached); err != nil {
		return "", fmt.Errorf("unmarshal cached generation: %w", err)
	}

	return cached.Text, nil
}

// EmbedText runs an embedding call through the cache.
func (g *Gateway) EmbedText(ctx context.Context, text string, links map[string]string) ([]float32, error) {
	raw, err := g.store.GetOrCompute(ctx, g.provider.EmbeddingModel(), ai.StrategyEmbedding, text, g.ttl, links,
		func(ctx context.Context) (*Computed, error) {
			result, err := g.provider.Embed(ctx, text)
			if err != nil {
				return nil, err
			}

			metrics.RecordTokenUsage(g.provider.Name(), g.provider.EmbeddingModel(),
				result.Usage.PromptTokens, 0)

			response, err := json.Marshal(cachedEmbedding{Vector: result.Vector, Usage: result.Usage})
			if err != nil {
				return nil, fmt.Errorf("marshal embedding: %w", err)
			}

			return &Computed{Response: response, TokensIn: result.Usage.PromptTokens}, nil
		})
	if err != nil {
		return nil, err
	}

	var cached cachedEmbedding
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal cached embedding: %w", err)
	}

	return cached.Vector, nil
}
