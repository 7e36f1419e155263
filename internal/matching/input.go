package matching

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Input carries the structured resume and job fields for one match call.
// Fields are treated as immutable; string comparisons are case-insensitive
// and Unicode-normalized.
type Input struct {
	ResumeSkills           []string `yaml:"resume_skills"`
	ResumeExperienceTitles []string `yaml:"resume_experience_titles"`
	ResumeProjectNames     []string `yaml:"resume_project_names"`
	ResumeText             string   `yaml:"resume_text"`

	JobKeywords               []string `yaml:"job_keywords"`
	JobRequiredQualifications []string `yaml:"job_required_qualifications"`
	JobText                   string   `yaml:"job_text"`
}

// Breakdown component names.
const (
	ComponentSkillOverlap           = "skill_overlap"
	ComponentKeywordCoverage        = "keyword_coverage"
	ComponentExperienceRelevance    = "experience_relevance"
	ComponentProjectRelevance       = "project_relevance"
	ComponentEducationBonus         = "education_bonus"
	ComponentSemanticSimilarity     = "semantic_similarity"
	ComponentPenaltyMissingCritical = "penalty_missing_critical"
)

// normalizeTerm lowercases and NFC-normalizes a term so that both sides of a
// comparison collapse differing diacritic encodings to the same form.
func normalizeTerm(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// termSet normalizes each entry of the list into a set, dropping empties.
func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		normalized := normalizeTerm(term)
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}

// tokens splits every string in the list on whitespace into a normalized
// token set.
func tokens(items []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, item := range items {
		for _, field := range strings.Fields(item) {
			normalized := normalizeTerm(field)
			if normalized == "" {
				continue
			}
			set[normalized] = struct{}{}
		}
	}
	return set
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	merged := make(map[string]struct{})
	for _, set := range sets {
		for term := range set {
			merged[term] = struct{}{}
		}
	}
	return merged
}
