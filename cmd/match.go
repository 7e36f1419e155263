package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/logger"
	"github.com/spigell/resume-refiner/internal/matching"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score a resume against a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("resume", "r", "", "resume input file (yaml)")
	matchCmd.Flags().StringP("job", "v", "", "job description input file (yaml)")
	matchCmd.Flags().Bool("require-semantic", false, "fail instead of degrading when the embedding provider is unavailable")
	matchCmd.Flags().Bool("chunked", false, "use windowed scoring for long documents")

	matchCmd.MarkFlagRequired("resume")
	matchCmd.MarkFlagRequired("job")
}

func match(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	input, links, err := loadMatchInput(
		cmd.Flag("resume").Value.String(),
		cmd.Flag("job").Value.String(),
	)
	if err != nil {
		logger.Fatal("loading inputs", zap.Error(err))
	}

	core, err := wire(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring the matching engine", zap.Error(err))
	}
	defer core.store.Close()

	opts := matching.Options{
		RequireSemantic: config.Match.RequireSemantic || cmd.Flag("require-semantic").Value.String() == "true",
		Chunked:         config.Match.Chunked || cmd.Flag("chunked").Value.String() == "true",
		EntityLinks:     links,
	}

	result, err := core.engine.Match(ctx, input, opts)
	if err != nil {
		logger.Fatal("matching failed",
			zap.Error(err),
			zap.String("hint", "the ai provider may be temporarily unavailable, retry later"),
		)
	}

	report := struct {
		Score           int                `json:"score"`
		SemanticPresent bool               `json:"semantic_present"`
		Breakdown       map[string]float64 `json:"breakdown"`
		MissingKeywords []string           `json:"missing_keywords,omitempty"`
		Counts          map[string]int64   `json:"counts"`
	}{
		Score:           result.Score,
		SemanticPresent: result.SemanticPresent,
		Breakdown:       result.Breakdown,
		MissingKeywords: result.Components.MissingKeywords,
		Counts:          core.store.Counters().Snapshot(),
	}

	pretty, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(pretty))
}
