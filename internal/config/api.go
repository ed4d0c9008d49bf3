package config

import "time"

// GetAPIBaseURL returns the backend base path every auth endpoint is resolved against.
func GetAPIBaseURL() string {
	return GetEnvOrDefault("API_BASE_URL", "http://localhost:8000/api")
}

// GetRefreshPath is the endpoint the refresh token is exchanged at, relative to the base URL.
func GetRefreshPath() string {
	return GetEnvOrDefault("API_REFRESH_PATH", "/auth/refresh-token")
}

// GetAPITimeout bounds a single HTTP round-trip to the backend.
func GetAPITimeout() time.Duration {
	return parseEnvDuration("API_TIMEOUT", 10*time.Second)
}
