package config

import (
	"github.com/rs/zerolog/log"
)

func GetRedisURL() string {
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		log.Debug().Str("component", "CONFIG").Msg("Redis URL not set")
	}
	return value
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}

func GetRedisDB() int {
	return parseEnvInt("REDIS_DB", 0)
}

// GetRedisKeyPrefix namespaces every key this client writes.
func GetRedisKeyPrefix() string {
	return GetEnvOrDefault("REDIS_KEY_PREFIX", "animestream:auth:")
}
