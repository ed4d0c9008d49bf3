package mockapi

import (
	"time"
)

// Session is one refresh token bound to one device of one user.
type Session struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	RefreshToken      string     `json:"refresh_token"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	DeviceName        string     `json:"device_name"`
	IPAddress         string     `json:"ip_address"`
	UserAgent         string     `json:"user_agent"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        time.Time  `json:"last_used_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

func (s Session) active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// DeviceInfo is what a login request tells us about the calling device.
type DeviceInfo struct {
	Fingerprint string
	Name        string
	IPAddress   string
	UserAgent   string
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) public() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type TokenStats struct {
	Active  int `json:"active_tokens"`
	Expired int `json:"expired_tokens"`
	Revoked int `json:"revoked_tokens"`
	Total   int `json:"total_tokens"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	RecaptchaToken       string `json:"recaptcha_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type revokeDeviceRequest struct {
	DeviceFingerprint string `json:"device_fingerprint"`
}
