package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-refiner/internal/ai"
	"github.com/spigell/resume-refiner/internal/ai/gemini"
	"github.com/spigell/resume-refiner/internal/ai/openai"
	"github.com/spigell/resume-refiner/internal/cache"
	"github.com/spigell/resume-refiner/internal/matching"
	"github.com/spigell/resume-refiner/internal/metrics"
	"github.com/spigell/resume-refiner/internal/secrets"
)

const (
	app = "resume-refiner"

	defaultCachePath  = "resume-refiner-cache.db"
	defaultTTLSeconds = 24 * 60 * 60
)

type Config struct {
	Cache  *CacheConfig  `mapstructure:"cache"`
	AI     *AIConfig     `mapstructure:"ai"`
	Match  *MatchConfig  `mapstructure:"match"`
	Refine *RefineConfig `mapstructure:"refine"`
}

type CacheConfig struct {
	Path       string `mapstructure:"path"`
	TTLSeconds int    `mapstructure:"ttl-seconds"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
}

type OpenAIConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	BaseURL        string `mapstructure:"base-url"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
}

type MatchConfig struct {
	Weights         *matching.Weights `mapstructure:"weights"`
	RequireSemantic bool              `mapstructure:"require-semantic"`
	Chunked         bool              `mapstructure:"chunked"`
	NoiseFloor      float64           `mapstructure:"noise-floor"`
	WindowTokens    int               `mapstructure:"window-tokens"`
	OverlapTokens   int               `mapstructure:"overlap-tokens"`
	TopK            int               `mapstructure:"top-k"`
}

type RefineConfig struct {
	MaxAttempts       int     `mapstructure:"max-attempts"`
	RetryDelaySeconds int     `mapstructure:"retry-delay-seconds"`
	Temperature       float32 `mapstructure:"temperature"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-refiner scores a resume against a job description and iteratively rewrites it to raise the score",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.openai.api-key-file", "OPENAI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding OPENAI_API_KEY_FILE environment variable: %v", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-refiner.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		// We can't proceed if an explicitly given config file parsed with error.
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app + ".yaml")

	// A missing default config is fine, defaults cover everything but API keys.
	_ = viper.ReadInConfig()
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Cache.Path == "" {
		config.Cache.Path = defaultCachePath
	}
	if config.Cache.TTLSeconds <= 0 {
		config.Cache.TTLSeconds = defaultTTLSeconds
	}
	if config.Match == nil {
		config.Match = &MatchConfig{}
	}
	if config.Refine == nil {
		config.Refine = &RefineConfig{}
	}

	return config, nil
}

func (c *MatchConfig) weights() matching.Weights {
	if c.Weights == nil {
		return matching.DefaultWeights()
	}
	return *c.Weights
}

func (c *MatchConfig) chunking() matching.ChunkingConfig {
	chunking := matching.DefaultChunking()
	if c.WindowTokens > 0 {
		chunking.WindowTokens = c.WindowTokens
	}
	if c.OverlapTokens > 0 {
		chunking.OverlapTokens = c.OverlapTokens
	}
	if c.TopK > 0 {
		chunking.TopK = c.TopK
	}
	return chunking
}

func cacheTTL(c *CacheConfig) time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// newProvider builds the configured AI provider. The set of backends is
// closed and selected once here, not by runtime inspection.
func newProvider(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ai configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case "", "gemini":
		if cfg.Gemini == nil {
			cfg.Gemini = &GeminiConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		return gemini.New(ctx, &gemini.Config{
			APIKey:         apiKey,
			Model:          cfg.Gemini.Model,
			EmbeddingModel: cfg.Gemini.EmbeddingModel,
			MaxRetries:     cfg.Gemini.MaxRetries,
			Logger:         logger,
		})
	case "openai":
		if cfg.OpenAI == nil {
			cfg.OpenAI = &OpenAIConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "openai api key",
			File: cfg.OpenAI.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY_FILE)", err)
		}

		return openai.New(&openai.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.Model,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// deps bundles the wired core components shared by the commands.
type deps struct {
	engine   *matching.Engine
	gateway  *cache.Gateway
	semantic *matching.SemanticScorer
	store    *cache.Store
}

// wire builds the cache store, gateway, semantic scorer and matching engine
// from the config.
func wire(ctx context.Context, config *Config, logger *zap.Logger) (*deps, error) {
	provider, err := newProvider(ctx, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building ai provider: %w", err)
	}

	store, err := cache.Open(config.Cache.Path, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	gateway := cache.NewGateway(store, provider, cacheTTL(config.Cache), logger)
	semantic := matching.NewSemanticScorer(gateway, config.Match.NoiseFloor, config.Match.chunking(), logger)
	engine := matching.NewEngine(semantic, config.Match.weights(), logger)

	return &deps{
		engine:   engine,
		gateway:  gateway,
		semantic: semantic,
		store:    store,
	}, nil
}
