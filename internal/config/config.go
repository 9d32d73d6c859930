// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/quality-engine/internal/eval"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Evaluation EvaluationConfig `yaml:"evaluation" mapstructure:"evaluation"`
	Agents     AgentsConfig     `yaml:"agents" mapstructure:"agents"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// EvaluationConfig configures scoring thresholds and iteration bounds.
type EvaluationConfig struct {
	Thresholds    eval.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	RubricPath    string          `yaml:"rubric_path" mapstructure:"rubric_path"`
	MaxIterations int             `yaml:"max_iterations" mapstructure:"max_iterations"`
}

// AgentsConfig configures the external extraction-agent service client.
type AgentsConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Key               string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentProjects int `yaml:"max_concurrent_projects" mapstructure:"max_concurrent_projects"`
}

// ServerConfig configures the evaluation API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("QUALITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "quality.db")
	v.SetDefault("evaluation.thresholds.min_overall", 3.0)
	v.SetDefault("evaluation.thresholds.min_fidelity", 3.0)
	v.SetDefault("evaluation.thresholds.min_structure", 3.0)
	v.SetDefault("evaluation.thresholds.min_key_points", 3)
	v.SetDefault("evaluation.thresholds.min_summary_words", 100)
	v.SetDefault("evaluation.max_iterations", 3)
	v.SetDefault("agents.base_url", "http://localhost:8090")
	v.SetDefault("agents.timeout_secs", 120)
	v.SetDefault("agents.requests_per_second", 2.0)
	v.SetDefault("agents.burst", 4)
	v.SetDefault("batch.max_concurrent_projects", 5)
	v.SetDefault("server.port", 8080)
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

	// A rubric file overrides the inline thresholds wholesale.
	if cfg.Evaluation.RubricPath != "" {
		t, err := eval.LoadRubric(cfg.Evaluation.RubricPath)
		if err != nil {
			return nil, err
		}
		cfg.Evaluation.Thresholds = t
	} else if err := eval.Validate(cfg.Evaluation.Thresholds); err != nil {
		return nil, err
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
