package authclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// User is the profile record as the backend sends it. Fields vary by backend
// version so it stays a map.
type User map[string]any

func (u User) str(key string) string {
	switch v := u[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (u User) ID() string    { return u.str("id") }
func (u User) Email() string { return u.str("email") }
func (u User) Name() string  { return u.str("name") }

// DisplayName is the name when known, else the email.
func (u User) DisplayName() string {
	if name := u.Name(); name != "" {
		return name
	}
	return u.Email()
}

// AuthPayload is the one shape every login and refresh response is reduced to.
type AuthPayload struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	// RefreshExpiresAt is passed through untouched: ISO string, epoch seconds,
	// epoch milliseconds or nil.
	RefreshExpiresAt any
	User             User
	DeviceName       string
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterPayload struct {
	Name                 string `json:"name" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	RecaptchaToken       string `json:"recaptcha_token,omitempty"`
}

type ForgotPasswordPayload struct {
	Email          string `json:"email" validate:"required,email"`
	RecaptchaToken string `json:"recaptcha_token,omitempty"`
}

type ResetPasswordPayload struct {
	Token                string `json:"token" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	RecaptchaToken       string `json:"recaptcha_token,omitempty"`
}

type Device struct {
	DeviceFingerprint string `json:"device_fingerprint"`
	DeviceName        string `json:"device_name"`
	IPAddress         string `json:"ip_address,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
	LastUsedAt        string `json:"last_used_at,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
	IsCurrent         bool   `json:"is_current"`
}

// LastUsed parses LastUsedAt; the zero time when absent or unparseable.
func (d Device) LastUsed() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, d.LastUsedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

type DeviceList struct {
	Devices    []Device `json:"devices"`
	TotalCount int      `json:"total_count"`
}

// SortedByLastUsed returns a copy ordered most recent first.
func (l DeviceList) SortedByLastUsed() []Device {
	out := make([]Device, len(l.Devices))
	copy(out, l.Devices)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUsed().After(out[j].LastUsed())
	})
	return out
}

// Current is the device the request was made from, if the server marked one.
func (l DeviceList) Current() (Device, bool) {
	for _, d := range l.Devices {
		if d.IsCurrent {
			return d, true
		}
	}
	return Device{}, false
}

func (l DeviceList) Others() []Device {
	var out []Device
	for _, d := range l.Devices {
		if !d.IsCurrent {
			out = append(out, d)
		}
	}
	return out
}

type RevokeResult struct {
	Message string `json:"message,omitempty"`
	Revoked bool   `json:"revoked"`
}

type RevokeOthersResult struct {
	Message      string `json:"message,omitempty"`
	RevokedCount int    `json:"revoked_count"`
}

type TokenStats struct {
	Active  int `json:"active_tokens"`
	Expired int `json:"expired_tokens"`
	Revoked int `json:"revoked_tokens"`
	Total   int `json:"total_tokens"`
}

// unwrap returns the "data" envelope when the body has one.
func unwrap(raw json.RawMessage) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &env) == nil && len(env.Data) > 0 && string(env.Data) != "null" && env.Data[0] == '{' {
		return env.Data
	}
	return raw
}
