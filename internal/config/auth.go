package config

import (
	"os"
	"strings"
	"time"
)

const (
	RotationOptional = "optional"
	RotationRequired = "required"
)

// GetAccessTokenDefaultTTL is used when the server omits expires_in.
func GetAccessTokenDefaultTTL() time.Duration {
	return parseEnvDuration("ACCESS_TOKEN_DEFAULT_TTL", 900*time.Second)
}

// GetTokenExpiryBuffer is subtracted from every expiry before a token counts as usable.
func GetTokenExpiryBuffer() time.Duration {
	return parseEnvDuration("TOKEN_EXPIRY_BUFFER", 60*time.Second)
}

// GetRefreshRotation returns "optional" (keep the old refresh token when the server
// does not send a new one) or "required".
func GetRefreshRotation() string {
	mode := strings.ToLower(GetEnvOrDefault("REFRESH_ROTATION", RotationOptional))
	if mode != RotationOptional && mode != RotationRequired {
		return RotationOptional
	}
	return mode
}

// GetDeviceName is the label sent to the backend for this installation.
func GetDeviceName() string {
	if name := GetEnvOrDefault("DEVICE_NAME", ""); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "animestream-client"
	}
	return "animestream-" + host
}
