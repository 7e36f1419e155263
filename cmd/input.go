package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/spigell/resume-refiner/internal/matching"
)

// resumeDoc is the structured resume input file. Ingestion and field
// extraction happen upstream; this tool consumes already-clean lists.
type resumeDoc struct {
	ID               string   `yaml:"id"`
	Skills           []string `yaml:"skills"`
	ExperienceTitles []string `yaml:"experience_titles"`
	ProjectNames     []string `yaml:"project_names"`
	Text             string   `yaml:"text"`
}

// jobDoc is the structured job description input file.
type jobDoc struct {
	ID                     string   `yaml:"id"`
	Keywords               []string `yaml:"keywords"`
	RequiredQualifications []string `yaml:"required_qualifications"`
	Text                   string   `yaml:"text"`
}

// loadDoc reads a YAML file into the target struct via mapstructure, so the
// file may carry extra fields (exporter metadata and the like) without
// breaking.
func loadDoc(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	return nil
}

// loadMatchInput builds the match input plus entity links from the resume
// and job files.
func loadMatchInput(resumePath, jobPath string) (matching.Input, map[string]string, error) {
	var resume resumeDoc
	if err := loadDoc(resumePath, &resume); err != nil {
		return matching.Input{}, nil, err
	}

	var job jobDoc
	if err := loadDoc(jobPath, &job); err != nil {
		return matching.Input{}, nil, err
	}

	input := matching.Input{
		ResumeSkills:              resume.Skills,
		ResumeExperienceTitles:    resume.ExperienceTitles,
		ResumeProjectNames:        resume.ProjectNames,
		ResumeText:                resume.Text,
		JobKeywords:               job.Keywords,
		JobRequiredQualifications: job.RequiredQualifications,
		JobText:                   job.Text,
	}

	links := map[string]string{}
	if resume.ID != "" {
		links["resume"] = resume.ID
	}
	if job.ID != "" {
		links["job"] = job.ID
	}

	return input, links, nil
}
