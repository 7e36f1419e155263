package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/cache"
	"github.com/spigell/resume-refiner/internal/logger"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Evict cache entries derived from a resume or job without clearing the whole cache",
	Run: func(cmd *cobra.Command, _ []string) {
		invalidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(invalidateCmd)

	invalidateCmd.Flags().StringP("entity-type", "t", "", `entity type the entries were derived from ("resume" or "job")`)
	invalidateCmd.Flags().StringP("entity-id", "i", "", "entity identifier")
	invalidateCmd.Flags().StringP("key", "k", "", "exact cache key to evict")
}

func invalidate(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := cache.Open(config.Cache.Path, nil, logger)
	if err != nil {
		logger.Fatal("opening cache", zap.Error(err))
	}
	defer store.Close()

	key := cmd.Flag("key").Value.String()
	entityType := cmd.Flag("entity-type").Value.String()
	entityID := cmd.Flag("entity-id").Value.String()

	switch {
	case key != "":
		deleted, err := store.InvalidateByKey(ctx, key)
		if err != nil {
			logger.Fatal("invalidating by key", zap.Error(err))
		}
		logger.Info("invalidated by key", zap.String("cache_key", key), zap.Int64("deleted", deleted))
	case entityType != "" && entityID != "":
		deleted, err := store.InvalidateByEntity(ctx, entityType, entityID)
		if err != nil {
			logger.Fatal("invalidating by entity", zap.Error(err))
		}
		logger.Info("invalidated by entity",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Int64("deleted", deleted),
		)
	default:
		logger.Fatal("either --key or both --entity-type and --entity-id are required")
	}
}
