package matching

import "sort"

// Components holds the lexical component ratios of one match, all in [0,1],
// plus the keyword gap used to drive rewrite prompts.
type Components struct {
	SkillOverlap           float64
	KeywordCoverage        float64
	ExperienceRelevance    float64
	ProjectRelevance       float64
	EducationBonus         float64
	PenaltyMissingCritical float64

	MatchedKeywords       []string
	MissingKeywords       []string
	MissingQualifications []string
}

// ScoreComponents computes the five lexical component ratios plus the
// critical-qualification penalty from the structured fields. All denominators
// are guarded: an empty job-side set yields 0 for the ratio instead of an
// error, so an input with nothing to compare scores 0.
func ScoreComponents(in Input) Components {
	jobKeywords := termSet(in.JobKeywords)
	requiredQuals := termSet(in.JobRequiredQualifications)

	skills := termSet(in.ResumeSkills)
	experienceTokens := tokens(in.ResumeExperienceTitles)
	projectTokens := tokens(in.ResumeProjectNames)
	resumeTerms := union(skills, experienceTokens, projectTokens)

	var c Components

	if len(jobKeywords) > 0 {
		var skillHits, coverageHits, experienceHits, projectHits int
		for keyword := range jobKeywords {
			if _, ok := skills[keyword]; ok {
				skillHits++
			}
			if _, ok := experienceTokens[keyword]; ok {
				experienceHits++
			}
			if _, ok := projectTokens[keyword]; ok {
				projectHits++
			}
			if _, ok := resumeTerms[keyword]; ok {
				coverageHits++
				c.MatchedKeywords = append(c.MatchedKeywords, keyword)
			} else {
				c.MissingKeywords = append(c.MissingKeywords, keyword)
			}
		}

		total := float64(len(jobKeywords))
		c.SkillOverlap = float64(skillHits) / total
		c.KeywordCoverage = float64(coverageHits) / total
		c.ExperienceRelevance = float64(experienceHits) / total
		c.ProjectRelevance = float64(projectHits) / total
	}

	if len(requiredQuals) > 0 {
		var missing int
		for qual := range requiredQuals {
			if _, ok := resumeTerms[qual]; ok {
				c.EducationBonus = 1.0
			} else {
				missing++
				c.MissingQualifications = append(c.MissingQualifications, qual)
			}
		}
		c.PenaltyMissingCritical = float64(missing) / float64(len(requiredQuals))
	}

	sort.Strings(c.MatchedKeywords)
	sort.Strings(c.MissingKeywords)
	sort.Strings(c.MissingQualifications)

	return c
}
