package authclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultExpiresIn is used when a response carries no access token lifetime.
const DefaultExpiresIn int64 = 900

// NormalizeAuthPayload reduces a login or refresh response body to an AuthPayload.
// Each field is looked up under its snake_case and camelCase spellings, first at the
// top level and then inside a "data" envelope. Empty values count as absent.
func NormalizeAuthPayload(body map[string]any) AuthPayload {
	roots := []map[string]any{body}
	if env, ok := body["data"].(map[string]any); ok {
		roots = append(roots, env)
	}

	pick := func(keys ...string) any {
		for _, root := range roots {
			for _, key := range keys {
				if v := root[key]; truthy(v) {
					return v
				}
			}
		}
		return nil
	}

	payload := AuthPayload{
		AccessToken:      asString(pick("access_token", "accessToken", "token")),
		RefreshToken:     asString(pick("refresh_token", "refreshToken")),
		ExpiresIn:        DefaultExpiresIn,
		RefreshExpiresAt: pick("refresh_expires_at", "refreshExpiresAt"),
		DeviceName:       asString(pick("device_name", "deviceName")),
	}
	if n, ok := asInt64(pick("expires_in", "expiresIn")); ok && n > 0 {
		payload.ExpiresIn = n
	}
	if user, ok := pick("user").(map[string]any); ok {
		payload.User = User(user)
	}
	return payload
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	case map[string]any:
		return true
	}
	return true
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n, true
		}
	case int:
		return int64(val), true
	case int64:
		return val, true
	}
	return 0, false
}
