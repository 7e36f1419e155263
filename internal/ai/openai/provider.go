package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/ai"
	"github.com/spigell/resume-refiner/internal/logger"
)

const (
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = string(openai.SmallEmbedding3)
)

// chatAPI is the subset of the go-openai client the provider uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Provider implements ai.Provider against the OpenAI API or any
// OpenAI-compatible endpoint via a custom base URL.
type Provider struct {
	client     chatAPI
	modelName  string
	embedModel string
	logger     *zap.Logger
}

// Config holds the OpenAI provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Logger         *zap.Logger
}

// New creates a Provider for the OpenAI-compatible API.
func New(cfg *Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	embedModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embedModel == "" {
		embedModel = defaultEmbeddingModel
	}

	return &Provider{
		client:     openai.NewClientWithConfig(clientCfg),
		modelName:  model,
		embedModel: embedModel,
		logger:     logger.WithCommonFields(cfg.Logger, "openai", model),
	}, nil
}

func (p *Provider) Name() string           { return "openai" }
func (p *Provider) Model() string          { return p.modelName }
func (p *Provider) EmbeddingModel() string { return p.embedModel }

// Generate sends the prompt as a single user message and returns the first
// choice's content.
func (p *Provider) Generate(ctx context.Context, prompt string, opts *ai.GenerateOptions) (*ai.GenerateResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt must not be empty")
	}

	req := openai.ChatCompletionRequest{
		Model: p.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts != nil {
		req.Temperature = opts.Temperature
		req.MaxTokens = opts.MaxOutputTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w: %w", ai.ErrProviderUnavailable, parseAPIError(err))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api returned no choices: %w", ai.ErrProviderUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("openai api returned empty content: %w", ai.ErrProviderUnavailable)
	}

	p.logger.Debug("chat completion finished",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &ai.GenerateResult{
		Text: text,
		Usage: ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Embed returns the embedding vector for the provided text.
func (p *Provider) Embed(ctx context.Context, text string) (*ai.EmbedResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text must not be empty")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(p.embedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w: %w", ai.ErrProviderUnavailable, parseAPIError(err))
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai api returned empty embedding: %w", ai.ErrProviderUnavailable)
	}

	return &ai.EmbedResult{
		Vector: resp.Data[0].Embedding,
		Usage: ai.Usage{
			PromptTokens: resp.Usage.PromptTokens,
		},
	}, nil
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai api error %d: %w", reqErr.HTTPStatusCode, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai api error %v: %s", apiErr.Code, apiErr.Message)
	}

	return err
}
