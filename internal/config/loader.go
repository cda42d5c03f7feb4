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

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if STOCKCAST_CONFIG is set
//  3. env (prefix STOCKCAST_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("STOCKCAST_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: STOCKCAST_TRANSPORT, STOCKCAST_CHUNK_SIZE, ...
	// Map env keys like STOCKCAST_CHUNK_SIZE -> chunk_size (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("STOCKCAST_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "stockcast_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Transport {
	case "direct":
		if cfg.PredictorEndpoint == "" {
			return fmt.Errorf("%w: direct transport needs predictor_endpoint", ErrInvalidConfig)
		}
	case "amqp":
		if cfg.AMQPURL == "" || cfg.AMQPQueue == "" {
			return fmt.Errorf("%w: amqp transport needs amqp_url and amqp_queue", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, cfg.Transport)
	}
	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if cfg.BuildConcurrency <= 0 {
		return fmt.Errorf("%w: build_concurrency must be positive", ErrInvalidConfig)
	}
	if cfg.CallTimeout <= 0 {
		return fmt.Errorf("%w: call_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive", ErrInvalidConfig)
	}
	if cfg.CacheThreshold <= 0 {
		return fmt.Errorf("%w: cache_threshold must be positive", ErrInvalidConfig)
	}
	return nil
}
