package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	TierAuto   = "auto"
	TierMemory = "memory"
	TierRedis  = "redis"
	TierSQLite = "sqlite"
)

// GetSessionTier selects the backend for tab-scoped values (access token, user).
func GetSessionTier() string {
	return strings.ToLower(GetEnvOrDefault("SESSION_TIER", TierMemory))
}

// GetPersistentTier selects the backend for long-lived values (refresh token, device name).
func GetPersistentTier() string {
	return strings.ToLower(GetEnvOrDefault("PERSISTENT_TIER", TierAuto))
}

// GetSQLitePath defaults to ~/.animestream/session.db.
func GetSQLitePath() string {
	if path := GetEnvOrDefault("SQLITE_PATH", ""); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "animestream-session.db"
	}
	return filepath.Join(home, ".animestream", "session.db")
}

// GetStorageTimeout bounds a single tier read or write.
func GetStorageTimeout() time.Duration {
	return parseEnvDuration("STORAGE_TIMEOUT", 2*time.Second)
}
