package matching

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Options tunes a single match call.
type Options struct {
	// RequireSemantic turns a provider outage into a hard error instead of
	// degrading to an absent semantic component.
	RequireSemantic bool
	// Chunked switches long-document window scoring on.
	Chunked bool
	// EntityLinks ties the provider calls of this match to domain entities
	// for targeted cache invalidation.
	EntityLinks map[string]string
}

// Result is the outcome of one match: the bounded final score, the
// per-component breakdown and whether the semantic component took part.
type Result struct {
	Score           int
	Breakdown       map[string]float64
	SemanticPresent bool
	Components      Components
}

// Engine orchestrates the component scorer, the semantic scorer and the
// aggregator for a single resume/job pair. It is stateless per call; all
// shared state lives in the cache store.
type Engine struct {
	semantic *SemanticScorer
	weights  Weights
	logger   *zap.Logger
}

// NewEngine creates a matching engine.
func NewEngine(semantic *SemanticScorer, weights Weights, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		semantic: semantic,
		weights:  weights,
		logger:   logger,
	}
}

// Weights returns the configured aggregation weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Match scores the resume against the job. The scoring math is deterministic
// given identical inputs and cache state; only the provider's embeddings can
// vary run to run.
func (e *Engine) Match(ctx context.Context, in Input, opts Options) (*Result, error) {
	components := ScoreComponents(in)

	similarity := e.semantic.Similarity
	if opts.Chunked {
		similarity = e.semantic.ChunkedSimilarity
	}

	semantic, present, err := similarity(ctx, in.ResumeText, in.JobText, opts.RequireSemantic, opts.EntityLinks)
	if err != nil {
		return nil, fmt.Errorf("semantic similarity: %w", err)
	}

	score, breakdown := Aggregate(components, semantic, present, e.weights)

	e.logger.Debug("match scored",
		zap.Int("score", score),
		zap.Bool("semantic_present", present),
		zap.Int("missing_keywords", len(components.MissingKeywords)),
		zap.String("matched_keywords", strings.Join(components.MatchedKeywords, ",")),
	)

	return &Result{
		Score:           score,
		Breakdown:       breakdown,
		SemanticPresent: present,
		Components:      components,
	}, nil
}
