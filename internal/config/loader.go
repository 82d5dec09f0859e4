package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "VOEUX_"
	envConfig = "VOEUX_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if VOEUX_CONFIG is set
//  3. env (prefix VOEUX_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// VOEUX_QUEUE_SIZE -> queue_size, VOEUX_LEVELS=L3,M1 -> [L3 M1]
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "levels" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DefaultMaxChoice < 1:
		return fmt.Errorf("%w: default_max_choice must be positive", ErrInvalidConfig)
	case c.ScoreRankBlend < 0 || c.ScoreRankBlend > 1:
		return fmt.Errorf("%w: score_rank_blend must be within [0,1]", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}

	switch c.LockBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis lock", ErrInvalidConfig)
		}
		if c.LockTTLSeconds < 1 {
			return fmt.Errorf("%w: lock_ttl_seconds must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: lock_backend %q", ErrInvalidConfig, c.LockBackend)
	}
	return nil
}
