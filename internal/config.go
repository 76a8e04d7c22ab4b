package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Finverse      FinverseConfig      `mapstructure:"finverse"`
	Storeganise   StoreganiseConfig   `mapstructure:"storeganise"`
	TokenStore    TokenStoreConfig    `mapstructure:"token_store"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type FinverseConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	ClientID      string        `mapstructure:"client_id" validate:"required"`
	ClientSecret  string        `mapstructure:"client_secret" validate:"required"`
	CustomerAppID string        `mapstructure:"customer_app_id" validate:"required"`
	PublicKey     string        `mapstructure:"public_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type StoreganiseConfig struct {
	BusinessCode string        `mapstructure:"business_code" validate:"required,hostname_rfc1123"`
	APIKey       string        `mapstructure:"api_key" validate:"required"`
	BaseURL      string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type TokenStoreConfig struct {
	Driver string      `mapstructure:"driver" validate:"required,oneof=memory redis"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// LoadConfigFromEnv builds the configuration from environment variables only,
// for container deployments without a config file.
func LoadConfigFromEnv() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:   getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Finverse: FinverseConfig{
			BaseURL:       getEnv("FINVERSE_BASE_URL", "https://api.prod.finverse.net"),
			ClientID:      getEnv("FINVERSE_CLIENT_ID", ""),
			ClientSecret:  getEnv("FINVERSE_CLIENT_SECRET", ""),
			CustomerAppID: getEnv("FINVERSE_CUSTOMER_APP_ID", ""),
			PublicKey:     getEnv("FINVERSE_PUBLIC_KEY", ""),
			Timeout:       getEnvAsDuration("FINVERSE_TIMEOUT", 30*time.Second),
		},
		Storeganise: StoreganiseConfig{
			BusinessCode: getEnv("STOREGANISE_BUSINESS_CODE", ""),
			APIKey:       getEnv("STOREGANISE_API_KEY", ""),
			BaseURL:      getEnv("STOREGANISE_BASE_URL", ""),
			Timeout:      getEnvAsDuration("STOREGANISE_TIMEOUT", 30*time.Second),
		},
		TokenStore: TokenStoreConfig{
			Driver: getEnv("TOKEN_STORE_DRIVER", TokenStoreMemory),
			Redis: RedisConfig{
				Addr:      getEnv("REDIS_ADDR", ""),
				Password:  getEnv("REDIS_PASSWORD", ""),
				DB:        getEnvAsInt("REDIS_DB", 0),
				KeyPrefix: getEnv("REDIS_KEY_PREFIX", "finverse:token"),
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fe := range validationErrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.TokenStore.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("token store config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout > 0 && c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *TokenStoreConfig) Validate() error {
	if c.Driver == TokenStoreRedis && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when driver is redis")
	}
	return nil
}
