package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Extractor ExtractorConfig `yaml:"extractor" mapstructure:"extractor"`
	Unlock    UnlockConfig    `yaml:"unlock" mapstructure:"unlock"`
	AIQueue   AIQueueConfig   `yaml:"aiqueue" mapstructure:"aiqueue"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ExtractorConfig configures the external extraction subprocess.
type ExtractorConfig struct {
	Command     string `yaml:"command" mapstructure:"command"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// Timeout returns the subprocess wall-clock budget.
func (c ExtractorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// UnlockConfig configures the unlock orchestrator.
type UnlockConfig struct {
	MaxRounds int `yaml:"max_rounds" mapstructure:"max_rounds"`
}

// AIQueueConfig configures the serialized model-call queue.
type AIQueueConfig struct {
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffSecs int     `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	MaxBackoffSecs     int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	JitterFraction     float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	RequestsPerMinute  int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs   int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// StoreConfig configures the session journal backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// BatchConfig configures directory batch processing.
type BatchConfig struct {
	MaxConcurrentFiles int `yaml:"max_concurrent_files" mapstructure:"max_concurrent_files"`
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
	v.SetEnvPrefix("UNLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("extractor.command", "doc-extract")
	v.SetDefault("extractor.timeout_secs", 300)
	v.SetDefault("extractor.temp_dir", "")
	v.SetDefault("unlock.max_rounds", 3)
	v.SetDefault("aiqueue.concurrency", 1)
	v.SetDefault("aiqueue.max_retries", 3)
	v.SetDefault("aiqueue.initial_backoff_secs", 5)
	v.SetDefault("aiqueue.max_backoff_secs", 60)
	v.SetDefault("aiqueue.jitter_fraction", 0.3)
	v.SetDefault("aiqueue.requests_per_minute", 20)
	v.SetDefault("aiqueue.breaker_threshold", 5)
	v.SetDefault("aiqueue.breaker_reset_secs", 60)
	// AutomaticEnv only surfaces keys viper already knows about, so even
	// env-only settings need a default registered.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "unlock.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_files", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
