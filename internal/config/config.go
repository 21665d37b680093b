package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ridgepoint-claims/claimflow/internal/ocr"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	OCR       ocr.Config      `yaml:"ocr" mapstructure:"ocr"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds generation gateway settings.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	HaikuModel     string  `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel    string  `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// PipelineConfig configures stage behavior and guardrail thresholds.
type PipelineConfig struct {
	// PrimaryScopeThreshold is the confidence floor for a scope to be
	// included in primary_scopes.
	PrimaryScopeThreshold float64 `yaml:"primary_scope_threshold" mapstructure:"primary_scope_threshold"`
	// RoofConfidenceCap is the ceiling applied to roof confidence when no
	// direct roof evidence exists.
	RoofConfidenceCap float64 `yaml:"roof_confidence_cap" mapstructure:"roof_confidence_cap"`
	// PhotoChunkSize is the max photos per findings-extraction request.
	PhotoChunkSize int `yaml:"photo_chunk_size" mapstructure:"photo_chunk_size"`
	// MaxRetries is the attempt cap for transient generation failures.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// CatalogConfig configures the repair line-item catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // empty = embedded default
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures multi-claim batch processing.
type BatchConfig struct {
	MaxConcurrentClaims int `yaml:"max_concurrent_claims" mapstructure:"max_concurrent_claims"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLAIMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claimflow.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_claims", 4)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.requests_per_sec", 5)
	v.SetDefault("anthropic.burst", 10)
	v.SetDefault("pipeline.primary_scope_threshold", 0.5)
	v.SetDefault("pipeline.roof_confidence_cap", 0.2)
	v.SetDefault("pipeline.photo_chunk_size", 8)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required settings are present for a given mode.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required (CLAIMFLOW_ANTHROPIC_KEY)")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Pipeline.PrimaryScopeThreshold <= 0 || c.Pipeline.PrimaryScopeThreshold > 1 {
		return eris.Errorf("config: primary_scope_threshold %v out of (0,1]", c.Pipeline.PrimaryScopeThreshold)
	}
	if c.Pipeline.RoofConfidenceCap < 0 || c.Pipeline.RoofConfidenceCap >= c.Pipeline.PrimaryScopeThreshold {
		return eris.Errorf("config: roof_confidence_cap %v must be in [0, primary_scope_threshold)", c.Pipeline.RoofConfidenceCap)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
