package matching

import "math"

// Weights configures the aggregation of lexical components and semantic
// similarity into one bounded score. All weights are non-negative.
type Weights struct {
	SkillOverlap           float64 `mapstructure:"skill-overlap" yaml:"skill_overlap"`
	KeywordCoverage        float64 `mapstructure:"keyword-coverage" yaml:"keyword_coverage"`
	ExperienceRelevance    float64 `mapstructure:"experience-relevance" yaml:"experience_relevance"`
	ProjectRelevance       float64 `mapstructure:"project-relevance" yaml:"project_relevance"`
	EducationBonus         float64 `mapstructure:"education-bonus" yaml:"education_bonus"`
	SemanticSimilarity     float64 `mapstructure:"semantic-similarity" yaml:"semantic_similarity"`
	PenaltyMissingCritical float64 `mapstructure:"penalty-missing-critical" yaml:"penalty_missing_critical"`
}

// DefaultWeights weights semantic similarity highest.
func DefaultWeights() Weights {
	return Weights{
		SkillOverlap:           0.20,
		KeywordCoverage:        0.15,
		ExperienceRelevance:    0.10,
		ProjectRelevance:       0.05,
		EducationBonus:         0.10,
		SemanticSimilarity:     0.40,
		PenaltyMissingCritical: 0.25,
	}
}

// Aggregate combines the lexical components and the semantic similarity into
// a final integer score in [0,100] plus the per-component breakdown. When the
// semantic component is absent its weight is excluded from the denominator,
// so a provider outage does not depress every score uniformly.
func Aggregate(c Components, semantic float64, semanticPresent bool, w Weights) (int, map[string]float64) {
	positive := c.SkillOverlap*w.SkillOverlap +
		c.KeywordCoverage*w.KeywordCoverage +
		c.ExperienceRelevance*w.ExperienceRelevance +
		c.ProjectRelevance*w.ProjectRelevance +
		c.EducationBonus*w.EducationBonus

	denom := w.SkillOverlap + w.KeywordCoverage + w.ExperienceRelevance +
		w.ProjectRelevance + w.EducationBonus

	if semanticPresent {
		positive += semantic * w.SemanticSimilarity
		denom += w.SemanticSimilarity
	}

	penalty := c.PenaltyMissingCritical * w.PenaltyMissingCritical

	raw := math.Max(0, positive-penalty)

	var normalized float64
	if denom > 0 {
		normalized = raw / denom
	}
	normalized = math.Min(1, normalized)

	breakdown := map[string]float64{
		ComponentSkillOverlap:           c.SkillOverlap,
		ComponentKeywordCoverage:        c.KeywordCoverage,
		ComponentExperienceRelevance:    c.ExperienceRelevance,
		ComponentProjectRelevance:       c.ProjectRelevance,
		ComponentEducationBonus:         c.EducationBonus,
		ComponentPenaltyMissingCritical: c.PenaltyMissingCritical,
	}
	if semanticPresent {
		breakdown[ComponentSemanticSimilarity] = semantic
	}

	return int(math.Round(normalized * 100)), breakdown
}
