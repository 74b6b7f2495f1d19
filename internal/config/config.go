// Package config loads the typed application configuration from viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/engine"
	"github.com/Veraticus/spice-ingest/internal/ingest"
	"github.com/Veraticus/spice-ingest/internal/llm"
	"github.com/Veraticus/spice-ingest/internal/vision"
	"github.com/spf13/viper"
)

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "$HOME/.local/share/spice/spice.db"

// Config is the typed view of the viper configuration.
type Config struct {
	Logging  LoggingConfig
	Database DatabaseConfig
	Import   ImportConfig
	LLM      LLMConfig
	Blob     BlobConfig
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string
}

// ImportConfig controls the import pipeline.
type ImportConfig struct {
	Organization        string
	Account             string
	MaxPayloadBytes     int64
	MaxImageBytes       int64
	MaxClassifyPerBatch int
	ClassifyTimeout     time.Duration
	AutoClassify        bool
}

// LLMConfig configures the generative completion service.
type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// BlobConfig configures statement storage.
type BlobConfig struct {
	Root string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("import.organization", "default")
	v.SetDefault("import.max_payload_bytes", ingest.DefaultMaxPayloadBytes)
	v.SetDefault("import.max_image_bytes", vision.DefaultMaxBytes)
	v.SetDefault("import.max_classify_per_batch", engine.DefaultMaxPerBatch)
	v.SetDefault("import.classify_timeout", ingest.DefaultClassifyTimeout)
	v.SetDefault("import.auto_classify", true)

	v.SetDefault("llm.provider", llm.ProviderGemini)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.cache_ttl", 15*time.Minute)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4096)
}

// Load builds a Config from v. Defaults must already be registered.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Import: ImportConfig{
			Organization:        v.GetString("import.organization"),
			Account:             v.GetString("import.account"),
			MaxPayloadBytes:     v.GetInt64("import.max_payload_bytes"),
			MaxImageBytes:       v.GetInt64("import.max_image_bytes"),
			MaxClassifyPerBatch: v.GetInt("import.max_classify_per_batch"),
			ClassifyTimeout:     v.GetDuration("import.classify_timeout"),
			AutoClassify:        v.GetBool("import.auto_classify"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			APIKey:      v.GetString("llm.api_key"),
			Model:       v.GetString("llm.model"),
			BaseURL:     v.GetString("llm.base_url"),
			Timeout:     v.GetDuration("llm.timeout"),
			CacheTTL:    v.GetDuration("llm.cache_ttl"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
		},
		Blob: BlobConfig{
			Root: ExpandPath(v.GetString("blob.root")),
		},
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandPath resolves a leading ~ to the user's home directory and then
// substitutes $VAR references. The home directory is left unexpanded when it
// cannot be determined.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// providerKeyFromEnv reads the provider's conventional API key variable.
func providerKeyFromEnv(provider string) string {
	var names []string
	switch provider {
	case llm.ProviderGemini:
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case llm.ProviderAnthropic:
		names = []string{"ANTHROPIC_API_KEY"}
	case llm.ProviderOpenAI:
		names = []string{"OPENAI_API_KEY"}
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, c.Logging.Format))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("%w: database.path", common.ErrMissingConfig))
	}
	if c.Import.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: import.max_payload_bytes must be positive", common.ErrInvalidConfig))
	}
	if c.Import.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: import.max_image_bytes must be positive", common.ErrInvalidConfig))
	}
	if c.Import.MaxClassifyPerBatch <= 0 {
		errs = append(errs, fmt.Errorf("%w: import.max_classify_per_batch must be positive", common.ErrInvalidConfig))
	}
	switch c.LLM.Provider {
	case llm.ProviderGemini, llm.ProviderAnthropic, llm.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider))
	}
	if c.LLM.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: llm.rate_limit cannot be negative", common.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// GenerativeEnabled reports whether an API key is available for the provider.
func (c *Config) GenerativeEnabled() bool {
	return c.LLM.APIKey != ""
}

// ClientConfig converts the LLM settings for llm.NewClient.
func (c *Config) ClientConfig() llm.Config {
	return llm.Config{
		Provider:    c.LLM.Provider,
		APIKey:      c.LLM.APIKey,
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		Timeout:     c.LLM.Timeout,
		CacheTTL:    c.LLM.CacheTTL,
		RateLimit:   c.LLM.RateLimit,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
}

// IngestConfig converts the import settings for ingest.NewService.
func (c *Config) IngestConfig() ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.MaxPayloadBytes = c.Import.MaxPayloadBytes
	cfg.ClassifyTimeout = c.Import.ClassifyTimeout
	cfg.SkipClassification = !c.Import.AutoClassify
	return cfg
}

// EngineConfig converts the classification settings for engine.NewWithConfig.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{MaxPerBatch: c.Import.MaxClassifyPerBatch}
}
