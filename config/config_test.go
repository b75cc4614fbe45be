package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Clean up environment before tests
	cleanupEnv := func() {
		os.Unsetenv("CARDLENS_SERVER_PORT")
		os.Unsetenv("CARDLENS_SERVER_ENVIRONMENT")
		os.Unsetenv("CARDLENS_API_API_KEY")
		os.Unsetenv("CARDLENS_API_BASE_URL")
		os.Unsetenv("CARDLENS_API_RATE_PER_SEC")
		os.Unsetenv("CARDLENS_CACHE_PATH")
		os.Unsetenv("CARDLENS_CACHE_MAX_AGE")
		os.Unsetenv("CARDLENS_INDEX_DIR")
		os.Unsetenv("CARDLENS_INDEX_SEARCH_TOP_K")
		os.Unsetenv("CARDLENS_INDEX_RERANK_TOP_K")
		os.Unsetenv("CARDLENS_MATCH_ACCEPT_THRESHOLD")
		os.Unsetenv("CARDLENS_OUTPUT_CSV_PATH")
	}

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		// Check defaults
		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.API.BaseURL != "https://api.pokemontcg.io/v2" {
			t.Errorf("API.BaseURL = %s, want https://api.pokemontcg.io/v2", cfg.API.BaseURL)
		}
		if cfg.API.RatePerSec != 5.0 {
			t.Errorf("API.RatePerSec = %f, want 5.0", cfg.API.RatePerSec)
		}
		if cfg.Cache.MaxAge != 720*time.Hour {
			t.Errorf("Cache.MaxAge = %v, want 720h", cfg.Cache.MaxAge)
		}
		if cfg.Index.SearchTopK != 10 {
			t.Errorf("Index.SearchTopK = %d, want 10", cfg.Index.SearchTopK)
		}
		if cfg.Index.RerankTopK != 5 {
			t.Errorf("Index.RerankTopK = %d, want 5", cfg.Index.RerankTopK)
		}
		if cfg.Match.AcceptThreshold != 0.85 {
			t.Errorf("Match.AcceptThreshold = %f, want 0.85", cfg.Match.AcceptThreshold)
		}
		if cfg.Match.InlierCeiling != 60 {
			t.Errorf("Match.InlierCeiling = %d, want 60", cfg.Match.InlierCeiling)
		}
		if cfg.Output.CSVPath != "collection.csv" {
			t.Errorf("Output.CSVPath = %s, want collection.csv", cfg.Output.CSVPath)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CARDLENS_SERVER_PORT", "9090")
		os.Setenv("CARDLENS_API_API_KEY", "custom-api-key")
		os.Setenv("CARDLENS_API_BASE_URL", "https://custom.api.com/v2")
		os.Setenv("CARDLENS_CACHE_PATH", "/tmp/cards.db")
		os.Setenv("CARDLENS_CACHE_MAX_AGE", "24h")
		os.Setenv("CARDLENS_MATCH_ACCEPT_THRESHOLD", "0.9")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.API.APIKey != "custom-api-key" {
			t.Errorf("API.APIKey = %s, want custom-api-key", cfg.API.APIKey)
		}
		if cfg.API.BaseURL != "https://custom.api.com/v2" {
			t.Errorf("API.BaseURL = %s, want https://custom.api.com/v2", cfg.API.BaseURL)
		}
		if cfg.Cache.Path != "/tmp/cards.db" {
			t.Errorf("Cache.Path = %s, want /tmp/cards.db", cfg.Cache.Path)
		}
		if cfg.Cache.MaxAge != 24*time.Hour {
			t.Errorf("Cache.MaxAge = %v, want 24h", cfg.Cache.MaxAge)
		}
		if cfg.Match.AcceptThreshold != 0.9 {
			t.Errorf("Match.AcceptThreshold = %f, want 0.9", cfg.Match.AcceptThreshold)
		}
	})

	t.Run("fails validation for invalid rate", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CARDLENS_API_RATE_PER_SEC", "-1")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for negative rate")
		}
	})

	t.Run("fails validation when rerank exceeds search top-k", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CARDLENS_INDEX_SEARCH_TOP_K", "5")
		os.Setenv("CARDLENS_INDEX_RERANK_TOP_K", "10")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error when rerank_top_k > search_top_k")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(t.TempDir())

		if err := loadEnvFile(); err != nil {
			t.Errorf("loadEnvFile() error = %v, want nil when file doesn't exist", err)
		}
	})

	t.Run("loads variables, skips comments, never overrides", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(t.TempDir())

		envContent := `
# Comment line
TEST_ENV_1=value1

   # indented comment
TEST_ENV_2=value2
TEST_ENV_OVERRIDE=new-value
`
		if err := os.WriteFile(".env", []byte(envContent), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		os.Unsetenv("TEST_ENV_1")
		os.Unsetenv("TEST_ENV_2")
		os.Setenv("TEST_ENV_OVERRIDE", "existing-value")
		defer func() {
			os.Unsetenv("TEST_ENV_1")
			os.Unsetenv("TEST_ENV_2")
			os.Unsetenv("TEST_ENV_OVERRIDE")
		}()

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_ENV_1") != "value1" {
			t.Errorf("TEST_ENV_1 = %s, want value1", os.Getenv("TEST_ENV_1"))
		}
		if os.Getenv("TEST_ENV_2") != "value2" {
			t.Errorf("TEST_ENV_2 = %s, want value2", os.Getenv("TEST_ENV_2"))
		}
		if os.Getenv("TEST_ENV_OVERRIDE") != "existing-value" {
			t.Errorf("TEST_ENV_OVERRIDE = %s, want existing-value (should not override)", os.Getenv("TEST_ENV_OVERRIDE"))
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API:   APIConfig{RatePerSec: 5},
			Cache: CacheConfig{Path: "cards.db"},
			Index: IndexConfig{SearchTopK: 10, RerankTopK: 5},
			Match: MatchConfig{AcceptThreshold: 0.85},
		}
	}

	t.Run("validates successfully with all required fields", func(t *testing.T) {
		if err := validate(valid()); err != nil {
			t.Errorf("validate() error = %v, want nil", err)
		}
	})

	t.Run("fails for zero rate", func(t *testing.T) {
		cfg := valid()
		cfg.API.RatePerSec = 0
		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for zero rate")
		}
	})

	t.Run("fails for out-of-range threshold", func(t *testing.T) {
		cfg := valid()
		cfg.Match.AcceptThreshold = 1.5
		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for threshold > 1")
		}
	})

	t.Run("fails for empty cache path", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.Path = ""
		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for empty cache path")
		}
	})
}
