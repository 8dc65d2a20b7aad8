// Copyright 2025 James Ross
package svcconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Redis configures the connection to the queue fabric's backing store.
type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// Database configures the state recorder's relational store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// GoFlow configures the external job-driver RPC client.
type GoFlow struct {
	BaseURL     string        `mapstructure:"base_url"`
	BearerToken string        `mapstructure:"bearer_token"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PollHz      float64       `mapstructure:"idle_poll_hz"`
	RequestReports bool       `mapstructure:"request_reports"`
}

// WorkerCoordinator configures the round-robin dispatcher (C8).
type WorkerCoordinator struct {
	Concurrency int64         `mapstructure:"concurrency"`
	IdleBackoff time.Duration `mapstructure:"idle_backoff"`
}

// AnalysisEngine configures the batch analysis workflow (C7).
type AnalysisEngine struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	GPUCores       int `mapstructure:"gpu_cores"`
}

// QAOrchestrator configures C5/C6.
type QAOrchestrator struct {
	MaxConcurrency     int64   `mapstructure:"max_concurrency"`
	CorrectiveThreshold float64 `mapstructure:"corrective_threshold"`
}

// Observability configures process-wide logging.
type Observability struct {
	LogLevel string `mapstructure:"log_level"`
}

// Config is the process-wide, ambient configuration loaded once at startup
// and threaded into every component's constructor -- a handle, not a global.
type Config struct {
	AnalysisConfigDir string            `mapstructure:"analysis_config_dir"`
	Redis             Redis             `mapstructure:"redis"`
	Database          Database          `mapstructure:"database"`
	GoFlow            GoFlow            `mapstructure:"goflow"`
	WorkerCoordinator WorkerCoordinator `mapstructure:"worker_coordinator"`
	AnalysisEngine    AnalysisEngine    `mapstructure:"analysis_engine"`
	QA                QAOrchestrator    `mapstructure:"qa"`
	Observability     Observability     `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		AnalysisConfigDir: "./configs/analysis",
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Database: Database{
			DSN: "file:vqa.db?mode=memory&cache=shared",
		},
		GoFlow: GoFlow{
			MaxAttempts:    3,
			Timeout:        30 * time.Second,
			PollHz:         0.5,
			RequestReports: false,
		},
		WorkerCoordinator: WorkerCoordinator{
			Concurrency: 8,
			IdleBackoff: 100 * time.Millisecond,
		},
		AnalysisEngine: AnalysisEngine{
			MaxConcurrency: 8,
			TimeoutSeconds: 60,
			GPUCores:       16,
		},
		QA: QAOrchestrator{
			MaxConcurrency:      8,
			CorrectiveThreshold: 0.75,
		},
		Observability: Observability{
			LogLevel: "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// anything absent, and applies environment overrides (e.g. GOFLOW_BEARER_TOKEN
// for goflow.bearer_token).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("analysis_config_dir", def.AnalysisConfigDir)

	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.username", def.Redis.Username)
	v.SetDefault("redis.password", def.Redis.Password)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("database.dsn", def.Database.DSN)

	v.SetDefault("goflow.base_url", def.GoFlow.BaseURL)
	v.SetDefault("goflow.bearer_token", def.GoFlow.BearerToken)
	v.SetDefault("goflow.max_attempts", def.GoFlow.MaxAttempts)
	v.SetDefault("goflow.timeout", def.GoFlow.Timeout)
	v.SetDefault("goflow.idle_poll_hz", def.GoFlow.PollHz)
	v.SetDefault("goflow.request_reports", def.GoFlow.RequestReports)

	v.SetDefault("worker_coordinator.concurrency", def.WorkerCoordinator.Concurrency)
	v.SetDefault("worker_coordinator.idle_backoff", def.WorkerCoordinator.IdleBackoff)

	v.SetDefault("analysis_engine.max_concurrency", def.AnalysisEngine.MaxConcurrency)
	v.SetDefault("analysis_engine.timeout_seconds", def.AnalysisEngine.TimeoutSeconds)
	v.SetDefault("analysis_engine.gpu_cores", def.AnalysisEngine.GPUCores)

	v.SetDefault("qa.max_concurrency", def.QA.MaxConcurrency)
	v.SetDefault("qa.corrective_threshold", def.QA.CorrectiveThreshold)

	v.SetDefault("observability.log_level", def.Observability.LogLevel)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints not expressible as defaults.
func Validate(cfg *Config) error {
	if cfg.WorkerCoordinator.Concurrency < 1 {
		return fmt.Errorf("worker_coordinator.concurrency must be >= 1")
	}
	if cfg.AnalysisEngine.MaxConcurrency < 1 {
		return fmt.Errorf("analysis_engine.max_concurrency must be >= 1")
	}
	if cfg.AnalysisEngine.GPUCores < 1 {
		return fmt.Errorf("analysis_engine.gpu_cores must be >= 1")
	}
	if cfg.QA.CorrectiveThreshold < 0 || cfg.QA.CorrectiveThreshold > 1 {
		return fmt.Errorf("qa.corrective_threshold must be in [0,1]")
	}
	if cfg.GoFlow.MaxAttempts < 1 {
		return fmt.Errorf("goflow.max_attempts must be >= 1")
	}
	return nil
}
