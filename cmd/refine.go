package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/logger"
	"github.com/spigell/resume-refiner/internal/refine"
	"github.com/spigell/resume-refiner/internal/utils"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	refinePreviewLength = 400
)

var refinePrompt = promptui.Select{
	Label: "Adopt the rewritten resume?",
	Items: []string{PromptYes, PromptNo},
}

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Iteratively rewrite the resume to raise its match score",
	Run: func(cmd *cobra.Command, _ []string) {
		runRefine(cmd)
	},
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().StringP("resume", "r", "", "resume input file (yaml)")
	refineCmd.Flags().StringP("job", "v", "", "job description input file (yaml)")
	refineCmd.Flags().StringP("output", "o", "", "file to write the refined resume text to")
	refineCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before writing the refined resume")

	refineCmd.MarkFlagRequired("resume")
	refineCmd.MarkFlagRequired("job")
	refineCmd.MarkFlagRequired("output")
}

func runRefine(cmd *cobra.Command) {
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

	loop := refine.New(core.engine, core.gateway, core.semantic, refine.Config{
		MaxAttempts: config.Refine.MaxAttempts,
		RetryDelay:  time.Duration(config.Refine.RetryDelaySeconds) * time.Second,
		Temperature: config.Refine.Temperature,
	}, logger)

	result, err := loop.Run(ctx, input, links)
	if err != nil {
		logger.Fatal("refinement failed",
			zap.Error(err),
			zap.String("hint", "the ai provider may be temporarily unavailable, retry later"),
		)
	}

	logger.Info("refinement finished",
		zap.String("state", string(result.State)),
		zap.Int("baseline_score", result.BaselineScore),
		zap.Int("best_score", result.BestScore),
		zap.Int("match_score", result.MatchScore),
		zap.Int("attempts", len(result.Attempts)),
	)

	if result.State == refine.StateExhausted {
		logger.Info("no candidate improved the score, keeping the original resume")
		return
	}

	fmt.Printf("refined resume preview:\n%s\n", utils.TruncateForLog(result.BestText, refinePreviewLength))

	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := refinePrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	output := cmd.Flag("output").Value.String()
	if err := os.WriteFile(output, []byte(result.BestText), 0o644); err != nil {
		logger.Fatal("writing refined resume", zap.Error(err))
	}

	logger.Info("refined resume written",
		zap.String("filename", output),
		zap.Int("score_gain", result.BestScore-result.BaselineScore),
	)
}
