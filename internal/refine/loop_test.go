package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/resume-refiner/internal/ai"
	"github.com/spigell/resume-refiner/internal/matching"
)

// stubEmbedder maps texts to fixed vectors by substring so alignment scores
// are fully controlled by the test.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) EmbedText(_ context.Context, text string, _ map[string]string) ([]float32, error) {
	for substr, vector := range s.vectors {
		if strings.Contains(text, substr) {
			return vector, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

type stubRewriter struct {
	queue []string
	err   error
	calls int
}

func (s *stubRewriter) GenerateText(_ context.Context, _, _ string, _ *ai.GenerateOptions, _ map[string]string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.queue) == 0 {
		return "", errors.New("unexpected rewrite call")
	}
	next := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
	}
	return next, nil
}

func testLoop(embedder matching.Embedder, rewriter Rewriter, attempts int) *Loop {
	semantic := matching.NewSemanticScorer(embedder, matching.DefaultNoiseFloor, matching.DefaultChunking(), nil)
	engine := matching.NewEngine(semantic, matching.DefaultWeights(), nil)
	return New(engine, rewriter, semantic, Config{MaxAttempts: attempts}, nil)
}

func testRefineInput() matching.Input {
	return matching.Input{
		ResumeSkills: []string{"python"},
		ResumeText:   "original resume",
		JobKeywords:  []string{"python", "docker"},
		JobText:      "job description",
	}
}

func TestAcceptsFirstImprovement(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"python docker":   {1, 0, 0}, // job keyword set
		"original resume": {0, 1, 0}, // orthogonal: shaped 0.375
		"better resume":   {1, 0, 0}, // identical: shaped 1.0
	}}
	rewriter := &stubRewriter{queue: []string{"better resume"}}

	result, err := testLoop(embedder, rewriter, 3).Run(context.Background(), testRefineInput(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.State != StateAccepted {
		t.Fatalf("expected accepted state, got %s", result.State)
	}

	if result.BestText != "better resume" {
		t.Fatalf("expected candidate adopted, got %q", result.BestText)
	}

	if result.BestScore <= result.BaselineScore {
		t.Fatalf("accepted score %d must beat baseline %d", result.BestScore, result.BaselineScore)
	}

	// First improvement stops the search.
	if rewriter.calls != 1 {
		t.Fatalf("expected exactly 1 rewrite call, got %d", rewriter.calls)
	}
}

func TestExhaustedReturnsOriginalUnchanged(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"python docker":   {1, 0, 0},
		"original resume": {0.9, 0.1, 0}, // already well aligned
		"worse resume":    {-1, 0, 0},    // shaped 0
	}}
	rewriter := &stubRewriter{queue: []string{"worse resume"}}

	result, err := testLoop(embedder, rewriter, 3).Run(context.Background(), testRefineInput(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.State != StateExhausted {
		t.Fatalf("expected exhausted state, got %s", result.State)
	}

	if result.BestText != "original resume" {
		t.Fatalf("exhausted session must keep the original text, got %q", result.BestText)
	}

	if result.BestScore != result.BaselineScore {
		t.Fatalf("exhausted session must keep the baseline score, got %d vs %d",
			result.BestScore, result.BaselineScore)
	}

	if rewriter.calls != 3 {
		t.Fatalf("expected full retry budget of 3, got %d calls", rewriter.calls)
	}

	if len(result.Attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(result.Attempts))
	}
}

func TestImprovementOnLaterAttempt(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"python docker":   {1, 0, 0},
		"original resume": {0, 1, 0},
		"worse resume":    {-1, 0, 0},
		"better resume":   {1, 0, 0},
	}}
	rewriter := &stubRewriter{queue: []string{"worse resume", "better resume"}}

	result, err := testLoop(embedder, rewriter, 3).Run(context.Background(), testRefineInput(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.State != StateAccepted {
		t.Fatalf("expected accepted state, got %s", result.State)
	}

	if len(result.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(result.Attempts))
	}

	if result.Attempts[0].Accepted || !result.Attempts[1].Accepted {
		t.Fatalf("unexpected acceptance flags: %+v", result.Attempts)
	}
}

func TestRefinementMonotonicity(t *testing.T) {
	cases := []struct {
		name       string
		candidates []string
	}{
		{name: "improving candidate", candidates: []string{"better resume"}},
		{name: "worsening candidate", candidates: []string{"worse resume"}},
	}

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"python docker":   {1, 0, 0},
		"original resume": {0, 1, 0},
		"worse resume":    {-1, 0, 0},
		"better resume":   {1, 0, 0},
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rewriter := &stubRewriter{queue: tc.candidates}

			result, err := testLoop(embedder, rewriter, 2).Run(context.Background(), testRefineInput(), nil)
			if err != nil {
				t.Fatal(err)
			}

			if result.BestScore < result.BaselineScore {
				t.Fatalf("refinement returned worse than baseline: %d < %d",
					result.BestScore, result.BaselineScore)
			}
		})
	}
}

func TestRewriteErrorPropagates(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"python docker":   {1, 0, 0},
		"original resume": {0, 1, 0},
	}}
	rewriter := &stubRewriter{err: ai.ErrProviderUnavailable}

	_, err := testLoop(embedder, rewriter, 2).Run(context.Background(), testRefineInput(), nil)
	if !errors.Is(err, ai.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable error, got %v", err)
	}
}

func TestBuildPromptFillsPlaceholders(t *testing.T) {
	prompt := buildPrompt("my resume", "the job", []string{"kubernetes", "go"})

	if !strings.Contains(prompt, "my resume") {
		t.Fatal("expected resume text in prompt")
	}
	if !strings.Contains(prompt, "the job") {
		t.Fatal("expected job text in prompt")
	}
	if !strings.Contains(prompt, "kubernetes, go") {
		t.Fatal("expected missing keywords in prompt")
	}
	if strings.Contains(prompt, "{{") {
		t.Fatalf("unfilled placeholder left in prompt: %s", prompt)
	}
}
