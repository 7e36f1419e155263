package refine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/ai"
	"github.com/spigell/resume-refiner/internal/matching"
	"github.com/spigell/resume-refiner/internal/utils"
)

//go:embed rewrite_prompt.md
var promptTemplate string

// State is the terminal state of a refinement session.
type State string

const (
	// StateAccepted means a candidate improved the score and was adopted.
	StateAccepted State = "accepted"
	// StateExhausted means the retry budget ran out without improvement.
	// This is a normal terminal state, not an error.
	StateExhausted State = "exhausted"
)

const defaultMaxAttempts = 3

// Rewriter generates text through the cached gateway.
type Rewriter interface {
	GenerateText(ctx context.Context, strategy, prompt string, opts *ai.GenerateOptions, links map[string]string) (string, error)
}

// Attempt records one rewrite candidate and its alignment score.
type Attempt struct {
	Text     string
	Score    int
	Accepted bool
}

// Result is the outcome of one refinement session. BestText is never worse
// than the input: an exhausted session returns the original text and score
// unchanged.
type Result struct {
	State         State
	BestText      string
	BestScore     int
	BaselineScore int
	MatchScore    int
	Attempts      []Attempt
}

// Config tunes the refinement loop.
type Config struct {
	// MaxAttempts is the retry budget for rewrite candidates.
	MaxAttempts int
	// RetryDelay is the pause between non-improving attempts.
	RetryDelay time.Duration
	// Temperature is passed to the text-generation call.
	Temperature float32
}

// Loop iteratively asks the provider to rewrite the resume and keeps only
// improvements. It is stateless per session; the cache store deduplicates
// repeated identical rewrite prompts.
type Loop struct {
	engine   *matching.Engine
	rewriter Rewriter
	semantic *matching.SemanticScorer
	cfg      Config
	logger   *zap.Logger
}

// New creates a refinement loop.
func New(engine *matching.Engine, rewriter Rewriter, semantic *matching.SemanticScorer, cfg Config, logger *zap.Logger) *Loop {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loop{
		engine:   engine,
		rewriter: rewriter,
		semantic: semantic,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one refinement session over the resume/job pair. The loop is a
// bounded iteration: adopt the first candidate that scores above the best so
// far and stop, otherwise retry from the same best text until the budget is
// exhausted. Rejected candidates are discarded, never compounded.
func (l *Loop) Run(ctx context.Context, in matching.Input, links map[string]string) (*Result, error) {
	baseline, err := l.engine.Match(ctx, in, matching.Options{EntityLinks: links})
	if err != nil {
		return nil, fmt.Errorf("baseline match: %w", err)
	}

	keywordText := strings.Join(in.JobKeywords, " ")

	baselineScore, err := l.alignment(ctx, in.ResumeText, keywordText, links)
	if err != nil {
		return nil, fmt.Errorf("baseline alignment: %w", err)
	}

	result := &Result{
		State:         StateExhausted,
		BestText:      in.ResumeText,
		BestScore:     baselineScore,
		BaselineScore: baselineScore,
		MatchScore:    baseline.Score,
	}

	l.logger.Info("refinement session started",
		zap.Int("baseline_match_score", baseline.Score),
		zap.Int("baseline_alignment", baselineScore),
		zap.Int("max_attempts", l.cfg.MaxAttempts),
		zap.Int("missing_keywords", len(baseline.Components.MissingKeywords)),
	)

	prompt := buildPrompt(result.BestText, in.JobText, baseline.Components.MissingKeywords)

	var opts *ai.GenerateOptions
	if l.cfg.Temperature > 0 {
		opts = &ai.GenerateOptions{Temperature: l.cfg.Temperature}
	}

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		candidate, err := l.rewriter.GenerateText(ctx, ai.StrategyFreeText, prompt, opts, links)
		if err != nil {
			return nil, fmt.Errorf("rewrite attempt %d: %w", attempt, err)
		}

		score, err := l.alignment(ctx, candidate, keywordText, links)
		if err != nil {
			return nil, fmt.Errorf("score attempt %d: %w", attempt, err)
		}

		improved := score > result.BestScore
		result.Attempts = append(result.Attempts, Attempt{Text: candidate, Score: score, Accepted: improved})

		l.logger.Debug("refinement attempt scored",
			zap.Int("attempt", attempt),
			zap.Int("score", score),
			zap.Int("best_score", result.BestScore),
			zap.Bool("improved", improved),
		)

		if improved {
			result.State = StateAccepted
			result.BestText = candidate
			result.BestScore = score

			rescored, err := l.engine.Match(ctx, inputWithResume(in, candidate), matching.Options{EntityLinks: links})
			if err != nil {
				return nil, fmt.Errorf("rescore accepted candidate: %w", err)
			}
			result.MatchScore = rescored.Score

			return result, nil
		}

		if attempt < l.cfg.MaxAttempts {
			if err := utils.WaitFor(ctx, l.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	l.logger.Info("refinement budget exhausted, keeping original resume",
		zap.Int("attempts", len(result.Attempts)),
		zap.Int("best_score", result.BestScore),
	)

	return result, nil
}

// alignment scores how well the text covers the job keyword set: the shaped
// semantic similarity between the text and the joined keywords, on the same
// 0-100 scale as the engine.
func (l *Loop) alignment(ctx context.Context, text, keywordText string, links map[string]string) (int, error) {
	value, _, err := l.semantic.Similarity(ctx, text, keywordText, true, links)
	if err != nil {
		return 0, err
	}
	return int(math.Round(value * 100)), nil
}

func inputWithResume(in matching.Input, resumeText string) matching.Input {
	in.ResumeText = resumeText
	return in
}

func buildPrompt(resumeText, jobText string, missingKeywords []string) string {
	missing := "none"
	if len(missingKeywords) > 0 {
		missing = strings.Join(missingKeywords, ", ")
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{JOB_TEXT}}", jobText)
	prompt = strings.ReplaceAll(prompt, "{{MISSING_KEYWORDS}}", missing)
	prompt = strings.ReplaceAll(prompt, "{{RESUME_TEXT}}", resumeText)

	return prompt
}
