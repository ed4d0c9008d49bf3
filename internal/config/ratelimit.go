package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := parseEnvBool("RATELIMIT_ENABLED", false)

	configs := map[string]RateLimitConfig{
		"global": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_GLOBAL", 1000), // 1000 requests per minute globally
			Window:  time.Minute,
		},
		"auth_login": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_AUTH_LOGIN", 10), // 10 attempts per minute
			Window:  time.Minute,
		},
		"auth_refresh": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_AUTH_REFRESH", 30), // 30 requests per minute
			Window:  time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	log.Warn().Str("component", "CONFIG").Str("key", key).Msg("No rate limit config found")
	return RateLimitConfig{Enabled: false}
}
