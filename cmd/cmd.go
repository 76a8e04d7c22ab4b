package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/frahmantamala/finverse-reconciler/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "finverse-reconciler",
	Short: "Finverse to Storeganise reconciler",
	Long:  `Receives Finverse payment webhooks and settles the matching Storeganise invoices.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Optional .env for local runs; real environment variables win.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading %s: %w", envFile, err)
	}

	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		// Load configuration from environment variables (Docker deployment)
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http_server.port", 8080)
	v.SetDefault("http_server.read_header_timeout", "5s")
	v.SetDefault("http_server.read_timeout", "15s")
	v.SetDefault("http_server.idle_timeout", "60s")
	v.SetDefault("http_server.write_timeout", "30s")
	v.SetDefault("http_server.shutdown_timeout", "30s")
	v.SetDefault("finverse.base_url", "https://api.prod.finverse.net")
	v.SetDefault("finverse.timeout", "30s")
	v.SetDefault("storeganise.timeout", "30s")
	v.SetDefault("token_store.driver", internal.TokenStoreMemory)
	v.SetDefault("token_store.redis.key_prefix", "finverse:token")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.logging.level", "debug")
	v.SetDefault("observability.logging.format", "text")
}

func initLogger(cfg *internal.Config) {
	logger.Init(cfg.Env, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", ".", "Directory containing config.yml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(eventCmd)
}
