package ai

import (
	"context"
	"errors"
)

// ErrProviderUnavailable signals that the external AI service could not be
// reached or returned an unusable response. Callers must not conflate it with
// a genuine low-relevance result.
var ErrProviderUnavailable = errors.New("ai provider unavailable")

// Strategy names identify the response-shape contract of a provider call.
// They take part in cache fingerprinting, so renaming one invalidates every
// entry cached under it.
const (
	StrategyFreeText       = "free-text"
	StrategyStructuredJSON = "structured-json"
	StrategyEmbedding      = "embedding"
)

// Usage reports token consumption for a single provider call. Zero values
// mean the provider did not report usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// GenerateOptions tunes a text-generation call. A nil options value means
// provider defaults.
type GenerateOptions struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

// GenerateResult is the outcome of a text-generation call.
type GenerateResult struct {
	Text  string
	Usage Usage
}

// EmbedResult is the outcome of an embedding call.
type EmbedResult struct {
	Vector []float32
	Usage  Usage
}

// Provider is the capability contract for an external generative text
// service: generate text from a prompt and embed text to a vector. Concrete
// backends are selected once at construction time via configuration.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
	// Model returns the generation model identifier.
	Model() string
	// EmbeddingModel returns the embedding model identifier.
	EmbeddingModel() string

	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (*GenerateResult, error)
	Embed(ctx context.Context, text string) (*EmbedResult, error)
}
