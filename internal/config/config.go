// Package config defines service configuration and its loading.
package config

import (
	"context"
	"runtime"
)

// Store and lock backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the run queue. A full queue answers 429.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of run workers.
	WorkerCount int `koanf:"worker_count"`

	// Levels lists the levels runs may target.
	Levels []string `koanf:"levels"`

	// DefaultMaxChoice applies to levels without a deadline record.
	DefaultMaxChoice int `koanf:"default_max_choice"`

	// ScoreRankBlend mixes the rank component into satisfaction, in [0,1].
	ScoreRankBlend float64 `koanf:"score_rank_blend"`

	// CatalogFile seeds the memory store from YAML.
	CatalogFile string `koanf:"catalog_file"`

	StoreBackend string `koanf:"store_backend"`
	DatabaseURL  string `koanf:"database_url"`

	LockBackend    string `koanf:"lock_backend"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	LockTTLSeconds int    `koanf:"lock_ttl_seconds"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		QueueSize:        64,
		WorkerCount:      workers,
		Levels:           []string{"L1", "L2", "L3", "M1", "M2"},
		DefaultMaxChoice: 5,
		ScoreRankBlend:   0,
		StoreBackend:     BackendMemory,
		LockBackend:      BackendMemory,
		RedisAddr:        "localhost:6379",
		LockTTLSeconds:   600,
	}
}
