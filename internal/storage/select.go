package storage

import (
	"context"
	"fmt"

	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/infrastructure/redis"
	"github.com/animestream/authcore/internal/logger"
)

// Options describe how to build a tier. Kind is one of the config.Tier* values.
type Options struct {
	Kind          string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	SQLitePath    string
}

// OptionsFromEnv reads the backend settings for the given kind.
func OptionsFromEnv(kind string) Options {
	return Options{
		Kind:          kind,
		RedisURL:      config.GetRedisURL(),
		RedisPassword: config.GetRedisPassword(),
		RedisDB:       config.GetRedisDB(),
		RedisPrefix:   config.GetRedisKeyPrefix(),
		SQLitePath:    config.GetSQLitePath(),
	}
}

// Select builds a tier once at startup. An explicit kind that cannot be opened is an
// error; "auto" tries redis, then sqlite, then falls back to memory with a warning.
func Select(ctx context.Context, opts Options) (Tier, error) {
	log := logger.For(logger.STORE)

	switch opts.Kind {
	case config.TierMemory:
		return NewMemoryTier(), nil
	case config.TierRedis:
		return openRedis(ctx, opts)
	case config.TierSQLite:
		return NewSQLiteTier(ctx, opts.SQLitePath)
	case config.TierAuto, "":
	default:
		return nil, fmt.Errorf("unknown storage tier %q", opts.Kind)
	}

	if opts.RedisURL != "" {
		tier, err := openRedis(ctx, opts)
		if err == nil {
			log.Info().Msg("Using Redis storage tier")
			return tier, nil
		}
		log.Warn().Err(err).Msg("Redis unavailable, trying SQLite")
	}

	if opts.SQLitePath != "" {
		tier, err := NewSQLiteTier(ctx, opts.SQLitePath)
		if err == nil {
			log.Info().Str("path", opts.SQLitePath).Msg("Using SQLite storage tier")
			return tier, nil
		}
		log.Warn().Err(err).Msg("SQLite unavailable")
	}

	log.Warn().Msg("Falling back to in-memory storage tier - values will not survive restarts")
	return NewMemoryTier(), nil
}

func openRedis(ctx context.Context, opts Options) (Tier, error) {
	svc, err := redis.NewService(ctx, redis.Options{
		URL:      opts.RedisURL,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	return NewRedisTier(svc, opts.RedisPrefix), nil
}
