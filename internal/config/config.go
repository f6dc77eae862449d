// Package config loads application configuration from config.yaml and
// STUDIO_-prefixed environment variables, and initializes the global
// logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level application configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is the sqlite file path or the postgres connection string.
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns int32  `mapstructure:"min_conns" yaml:"min_conns"`
}

// EngineConfig tunes the suggestion and learning engines.
type EngineConfig struct {
	// MinEvidence is how many matching feedback rows a signal needs
	// before mining creates a pattern from it.
	MinEvidence int `mapstructure:"min_evidence" yaml:"min_evidence"`
	// DecayDays is the staleness window before a pattern's confidence
	// decays.
	DecayDays int `mapstructure:"decay_days" yaml:"decay_days"`
	// ValidationDays is the outcome-sampling window for pattern
	// validation sweeps.
	ValidationDays int `mapstructure:"validation_days" yaml:"validation_days"`
}

// BatchConfig tunes the email batch sweep.
type BatchConfig struct {
	// Hours is the sweep lookback window.
	Hours int `mapstructure:"hours" yaml:"hours"`
	// Limit caps how many candidate emails one sweep considers; 0 means
	// no cap.
	Limit int `mapstructure:"limit" yaml:"limit"`
	// InternalDomains are sender domains never batched.
	InternalDomains []string `mapstructure:"internal_domains" yaml:"internal_domains"`
	Concurrency     int      `mapstructure:"concurrency" yaml:"concurrency"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AnthropicConfig configures the detection classifier client.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// Load reads config.yaml from the working directory, overlays
// STUDIO_-prefixed environment variables, and fills in defaults. A
// missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "studio-ops.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("engine.min_evidence", 3)
	v.SetDefault("engine.decay_days", 30)
	v.SetDefault("engine.validation_days", 90)
	v.SetDefault("batch.hours", 24)
	v.SetDefault("batch.limit", 0)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")

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

// InitLogger builds a zap logger from the log config and installs it as
// the global logger.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrapf(err, "config: parse log level %q", cfg.Level)
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
