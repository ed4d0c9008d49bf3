package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/animestream/authcore/pkg/httpext"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	headerFingerprint = "X-Device-Fingerprint"
	headerDeviceName  = "X-Device-Name"
)

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func validationError(w http.ResponseWriter, message string) {
	httpext.JsonError(w, message, http.StatusUnprocessableEntity)
}

// deviceFor identifies the calling device. Without an explicit fingerprint header the
// same user agent from the same address is treated as the same device.
func deviceFor(r *http.Request, requestedName string) DeviceInfo {
	ip := clientIP(r)
	ua := r.UserAgent()

	fingerprint := r.Header.Get(headerFingerprint)
	if fingerprint == "" {
		fingerprint = uuid.NewSHA1(uuid.NameSpaceURL, []byte(ua+"|"+ip)).String()
	}

	name := requestedName
	if name == "" {
		name = r.Header.Get(headerDeviceName)
	}
	if name == "" {
		name = ua
	}
	if name == "" {
		name = "Unknown device"
	}

	return DeviceInfo{Fingerprint: fingerprint, Name: name, IPAddress: ip, UserAgent: ua}
}

func (s *Server) authResponse(w http.ResponseWriter, user User, session Session) {
	accessToken, err := s.tokens.Issue(session)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to issue access token")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"access_token":       accessToken,
		"token_type":         "Bearer",
		"expires_in":         int(s.tokens.TTL() / time.Second),
		"refresh_token":      session.RefreshToken,
		"refresh_expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
		"device_name":        session.DeviceName,
		"user":               user.public(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		validationError(w, "The email and password fields are required.")
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		s.log.Info().Str("email", req.Email).Msg("Login rejected")
		httpext.JsonError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	session := s.sessions.CreateSession(user.ID, deviceFor(r, req.DeviceName))
	s.log.Info().Str("user_id", user.ID).Str("device", session.DeviceFingerprint).Msg("Login succeeded")
	s.authResponse(w, user, session)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		validationError(w, "The name, email and password fields are required.")
		return
	}
	if req.Password != req.PasswordConfirmation {
		validationError(w, "The password confirmation does not match.")
		return
	}

	user, err := s.users.Create(req.Name, req.Email, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		validationError(w, "The email has already been taken.")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create user")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.respond(w, http.StatusCreated, map[string]any{
		"message": "Registration successful",
		"user":    user.public(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpext.JsonError(w, "Refresh token is required", http.StatusUnauthorized)
		return
	}

	session, ok := s.sessions.RefreshSession(req.RefreshToken, s.opts.RotateRefresh)
	if !ok {
		httpext.JsonError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}
	user, ok := s.users.ByID(session.UserID)
	if !ok {
		httpext.JsonError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	s.log.Debug().Str("user_id", user.ID).Bool("rotated", s.opts.RotateRefresh).Msg("Refreshed session")
	s.authResponse(w, user, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	revoked := s.sessions.Revoke(req.RefreshToken)
	s.respond(w, http.StatusOK, map[string]any{
		"message": "Logged out",
		"revoked": revoked,
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		validationError(w, "The email field is required.")
		return
	}

	// Unknown addresses get the same answer.
	if _, ok := s.users.ByEmail(req.Email); ok {
		link := s.resets.Issue(req.Email)
		s.log.Info().Str("email", req.Email).Str("link", link).Msg("Password reset link issued")
	}
	s.respond(w, http.StatusOK, map[string]any{
		"message": "If the address is registered, a reset link has been sent.",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Password == "" || req.Password != req.PasswordConfirmation {
		validationError(w, "The password confirmation does not match.")
		return
	}
	if !s.resets.Consume(req.Token, req.Email) {
		validationError(w, "This password reset token is invalid.")
		return
	}

	user, ok := s.users.ByEmail(req.Email)
	if !ok {
		validationError(w, "This password reset token is invalid.")
		return
	}
	if err := s.users.SetPassword(user.ID, req.Password); err != nil {
		s.log.Error().Err(err).Msg("Failed to set password")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	revoked := s.sessions.RevokeUser(user.ID)
	s.respond(w, http.StatusOK, map[string]any{
		"message":       "Password has been reset.",
		"revoked_count": revoked,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r)
	user, ok := s.users.ByID(claims.Subject)
	if !ok {
		httpext.JsonError(w, "Unauthenticated.", http.StatusUnauthorized)
		return
	}
	s.respond(w, http.StatusOK, user.public())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r)
	sessions := s.sessions.Devices(claims.Subject)

	devices := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		devices = append(devices, map[string]any{
			"device_fingerprint": session.DeviceFingerprint,
			"device_name":        session.DeviceName,
			"ip_address":         session.IPAddress,
			"user_agent":         session.UserAgent,
			"last_used_at":       session.LastUsedAt.UTC().Format(time.RFC3339),
			"created_at":         session.CreatedAt.UTC().Format(time.RFC3339),
			"expires_at":         session.ExpiresAt.UTC().Format(time.RFC3339),
			"is_current":         session.DeviceFingerprint == claims.Fingerprint,
		})
	}

	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"devices":     devices,
		"total_count": len(devices),
	})
}

func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	var req revokeDeviceRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DeviceFingerprint) == "" {
		validationError(w, "The device fingerprint field is required.")
		return
	}

	claims := ClaimsFrom(r)
	count := s.sessions.RevokeDevice(claims.Subject, req.DeviceFingerprint)
	if count == 0 {
		httpext.JsonError(w, "Device not found", http.StatusNotFound)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"message": "Device revoked",
		"revoked": true,
	})
}

func (s *Server) handleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r)
	count := s.sessions.RevokeOthers(claims.Subject, claims.Fingerprint)
	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"message":       "Other devices revoked",
		"revoked_count": count,
	})
}

func (s *Server) handleTokenStats(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r)
	httpext.JsonResponse(w, http.StatusOK, s.sessions.Stats(claims.Subject))
}

func (s *Server) handleAnime(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	s.respond(w, http.StatusOK, map[string]any{
		"slug":  slug,
		"title": strings.ReplaceAll(slug, "-", " "),
	})
}
