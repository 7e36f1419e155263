package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-refiner/internal/ai"
	"github.com/spigell/resume-refiner/internal/logger"
)

const (
	defaultModel          = "gemini-2.5-pro"
	defaultEmbeddingModel = "gemini-embedding-001"
)

// sleep is overridable in tests to avoid waiting on retry backoff.
var sleep = time.Sleep

// modelsAPI is the subset of the genai Models surface the provider uses.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Provider implements ai.Provider on top of the Gemini API.
type Provider struct {
	models     modelsAPI
	modelName  string
	embedModel string
	maxRetries int
	logger     *zap.Logger
}

// Config holds the Gemini provider settings.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxRetries     int
	Logger         *zap.Logger
}

// New creates a Provider configured for the Gemini API backend.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
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
		models:     client.Models,
		logger:     logger.WithCommonFields(cfg.Logger, "gemini", model),
		modelName:  model,
		embedModel: embedModel,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (p *Provider) Name() string           { return "gemini" }
func (p *Provider) Model() string          { return p.modelName }
func (p *Provider) EmbeddingModel() string { return p.embedModel }

// Generate sends the prompt to Gemini and returns the concatenated textual
// parts of the first candidates. Temporary API errors are retried up to the
// configured budget before the call is reported as unavailable.
func (p *Provider) Generate(ctx context.Context, prompt string, opts *ai.GenerateOptions) (*ai.GenerateResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt must not be empty")
	}

	var config *genai.GenerateContentConfig
	if opts != nil {
		config = &genai.GenerateContentConfig{}
		if opts.Temperature > 0 {
			config.Temperature = genai.Ptr(opts.Temperature)
		}
		if opts.MaxOutputTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxOutputTokens)
		}
	}

	var resp *genai.GenerateContentResponse
	err := p.withRetries(ctx, "generate content", func() error {
		var callErr error
		resp, callErr = p.models.GenerateContent(ctx, p.modelName, genai.Text(prompt), config)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w: %w", ai.ErrProviderUnavailable, err)
	}

	text := extractText(resp)
	if text == "" {
		return nil, fmt.Errorf("gemini api returned empty response: %w", ai.ErrProviderUnavailable)
	}

	result := &ai.GenerateResult{Text: text}
	if resp.UsageMetadata != nil {
		result.Usage = ai.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	return result, nil
}

// Embed returns the embedding vector for the provided text.
func (p *Provider) Embed(ctx context.Context, text string) (*ai.EmbedResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text must not be empty")
	}

	var resp *genai.EmbedContentResponse
	err := p.withRetries(ctx, "embed content", func() error {
		var callErr error
		resp, callErr = p.models.EmbedContent(ctx, p.embedModel, genai.Text(text), nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w: %w", ai.ErrProviderUnavailable, err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini api returned empty embedding: %w", ai.ErrProviderUnavailable)
	}

	return &ai.EmbedResult{Vector: resp.Embeddings[0].Values}, nil
}

// withRetries runs the call, retrying temporary API errors with a linear
// backoff. The last error is returned when the budget is exhausted.
func (p *Provider) withRetries(ctx context.Context, step string, call func() error) error {
	attempts := p.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}

		if !isTemporary(lastErr) || attempt == attempts {
			return lastErr
		}

		p.logger.Warn("temporary gemini error, retrying",
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sleep(time.Duration(attempt) * time.Second)
		}
	}

	return lastErr
}

// isTemporary reports whether the API error is worth retrying.
func isTemporary(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
