package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server CardsServerConfig
	API    APIConfig
	Cache  CacheConfig
	Index  IndexConfig
	Vision VisionConfig
	Match  MatchConfig
	Output OutputConfig
}

// CardsServerConfig holds HTTP server configuration
type CardsServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// APIConfig holds Pokemon TCG API configuration
type APIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
	EnableDebug bool    `mapstructure:"debug"`
}

// CacheConfig holds the durable card cache configuration
type CacheConfig struct {
	Path   string        `mapstructure:"path"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// IndexConfig holds the reference index configuration
type IndexConfig struct {
	Dir        string `mapstructure:"dir"`
	EfSearch   int    `mapstructure:"ef_search"`
	SearchTopK int    `mapstructure:"search_top_k"`
	RerankTopK int    `mapstructure:"rerank_top_k"`
}

// VisionConfig holds the image encoder configuration
type VisionConfig struct {
	ModelPath string `mapstructure:"model_path"`
}

// MatchConfig holds the confidence fusion policy
type MatchConfig struct {
	DistanceWeight  float64 `mapstructure:"distance_weight"`
	InlierWeight    float64 `mapstructure:"inlier_weight"`
	InlierCeiling   int     `mapstructure:"inlier_ceiling"`
	AcceptThreshold float64 `mapstructure:"accept_threshold"`
}

// OutputConfig holds scan output configuration
type OutputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
	Daily   bool   `mapstructure:"daily"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Best-effort .env loading for local development
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cardlens/")

	// Environment variable settings
	v.SetEnvPrefix("CARDLENS")
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	// Local dashboards on any dev port, plus the hosted collection UI.
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "https://scan.cardlens.app"})

	// Pokemon TCG API defaults
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.base_url", "https://api.pokemontcg.io/v2")
	v.SetDefault("api.rate_per_sec", 5.0)
	v.SetDefault("api.debug", false)

	// Cache defaults
	v.SetDefault("cache.path", "cardlens.db")
	v.SetDefault("cache.max_age", "720h") // 30 days

	// Index defaults
	v.SetDefault("index.dir", "index")
	v.SetDefault("index.ef_search", 64)
	v.SetDefault("index.search_top_k", 10)
	v.SetDefault("index.rerank_top_k", 5)

	// Vision defaults
	v.SetDefault("vision.model_path", "models/encoder.onnx")

	// Match policy defaults
	v.SetDefault("match.distance_weight", 0.6)
	v.SetDefault("match.inlier_weight", 0.4)
	v.SetDefault("match.inlier_ceiling", 60)
	v.SetDefault("match.accept_threshold", 0.85)

	// Output defaults
	v.SetDefault("output.csv_path", "collection.csv")
	v.SetDefault("output.daily", false)
}

// loadEnvFile loads KEY=VALUE pairs from a .env file in the working
// directory. Missing file is not an error; existing environment variables
// are never overridden.
func loadEnvFile() error {
	f, err := os.Open(".env")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, strings.TrimSpace(value))
	}
	return scanner.Err()
}

// validate validates the configuration
func validate(config *Config) error {
	if config.API.RatePerSec <= 0 {
		return fmt.Errorf("api.rate_per_sec must be positive, got: %f", config.API.RatePerSec)
	}

	if config.Index.SearchTopK <= 0 || config.Index.RerankTopK <= 0 {
		return fmt.Errorf("index top-k values must be positive")
	}

	if config.Index.RerankTopK > config.Index.SearchTopK {
		return fmt.Errorf("index.rerank_top_k (%d) cannot exceed index.search_top_k (%d)",
			config.Index.RerankTopK, config.Index.SearchTopK)
	}

	if config.Match.AcceptThreshold < 0 || config.Match.AcceptThreshold > 1 {
		return fmt.Errorf("match.accept_threshold must be in [0,1], got: %f", config.Match.AcceptThreshold)
	}

	if config.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}

	return nil
}
