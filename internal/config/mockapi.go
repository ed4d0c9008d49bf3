package config

import (
	"strings"
	"sync"
	"time"
)

var (
	jwtSecretMu sync.RWMutex
	// JWTSecret signs access tokens minted by the reference backend
	JWTSecret = []byte(GetEnvOrDefault("JWT_SECRET", "your-256-bit-secret"))
)

// SetJWTSecret temporarily changes the JWT secret and returns a function to restore it
// This is primarily used for testing
func SetJWTSecret(secret []byte) func() {
	jwtSecretMu.Lock()
	previous := JWTSecret
	JWTSecret = secret
	jwtSecretMu.Unlock()

	return func() {
		jwtSecretMu.Lock()
		JWTSecret = previous
		jwtSecretMu.Unlock()
	}
}

// GetJWTSecret returns the current JWT secret in a thread-safe manner
func GetJWTSecret() []byte {
	jwtSecretMu.RLock()
	defer jwtSecretMu.RUnlock()
	return JWTSecret
}

func GetMockAPIAddr() string {
	return GetEnvOrDefault("MOCKAPI_ADDR", ":8000")
}

func GetMockAPIAccessTTL() time.Duration {
	return parseEnvDuration("MOCKAPI_ACCESS_TTL", 15*time.Minute)
}

func GetMockAPIRefreshTTL() time.Duration {
	return parseEnvDuration("MOCKAPI_REFRESH_TTL", 30*24*time.Hour)
}

func GetMockAPIRotateRefresh() bool {
	return parseEnvBool("MOCKAPI_ROTATE_REFRESH", true)
}

// GetMockAPIEnvelope is "flat" or "data".
func GetMockAPIEnvelope() string {
	if strings.EqualFold(GetEnvOrDefault("MOCKAPI_ENVELOPE", "flat"), "data") {
		return "data"
	}
	return "flat"
}

// GetMockAPICase is "snake" or "camel".
func GetMockAPICase() string {
	if strings.EqualFold(GetEnvOrDefault("MOCKAPI_CASE", "snake"), "camel") {
		return "camel"
	}
	return "snake"
}

// GetMockAPIFrontendURL is the base used when building reset-password links.
func GetMockAPIFrontendURL() string {
	return GetEnvOrDefault("MOCKAPI_FRONTEND_URL", "http://localhost:9000")
}
