package mockapi

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore holds refresh sessions keyed by refresh token.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      now,
	}
}

// CreateSession issues a refresh token for the device. A device that already holds an
// active session for the user has it revoked first so one fingerprint maps to one session.
func (s *SessionStore) CreateSession(userID string, device DeviceInfo) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if device.Fingerprint == "" {
		device.Fingerprint = uuid.New().String()
	}
	for token, existing := range s.sessions {
		if existing.UserID == userID && existing.DeviceFingerprint == device.Fingerprint && existing.active(now) {
			existing.RevokedAt = &now
			s.sessions[token] = existing
		}
	}

	session := Session{
		ID:                uuid.New().String(),
		UserID:            userID,
		RefreshToken:      uuid.New().String(),
		DeviceFingerprint: device.Fingerprint,
		DeviceName:        device.Name,
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		CreatedAt:         now,
		LastUsedAt:        now,
		ExpiresAt:         now.Add(s.ttl),
	}

	s.sessions[session.RefreshToken] = session
	return session
}

func (s *SessionStore) GetSession(refreshToken string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[refreshToken]
	if !exists || !session.active(s.now()) {
		return Session{}, false
	}
	return session, true
}

// RefreshSession marks the session used. With rotate set the old refresh token is revoked
// and a new one takes its place; the expiry window is kept.
func (s *SessionStore) RefreshSession(oldRefreshToken string, rotate bool) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	old, exists := s.sessions[oldRefreshToken]
	if !exists || !old.active(now) {
		return Session{}, false
	}

	if !rotate {
		old.LastUsedAt = now
		s.sessions[oldRefreshToken] = old
		return old, true
	}

	next := old
	next.RefreshToken = uuid.New().String()
	next.LastUsedAt = now
	next.RevokedAt = nil

	old.RevokedAt = &now
	s.sessions[oldRefreshToken] = old
	s.sessions[next.RefreshToken] = next

	return next, true
}

// Revoke invalidates one refresh token. It reports whether an active session was revoked.
func (s *SessionStore) Revoke(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	session, exists := s.sessions[refreshToken]
	if !exists || !session.active(now) {
		return false
	}
	session.RevokedAt = &now
	s.sessions[refreshToken] = session
	return true
}

// RevokeDevice revokes every active session of the user on the device.
func (s *SessionStore) RevokeDevice(userID, fingerprint string) int {
	return s.revokeWhere(func(session Session) bool {
		return session.UserID == userID && session.DeviceFingerprint == fingerprint
	})
}

// RevokeOthers revokes every active session of the user except those on keepFingerprint.
func (s *SessionStore) RevokeOthers(userID, keepFingerprint string) int {
	return s.revokeWhere(func(session Session) bool {
		return session.UserID == userID && session.DeviceFingerprint != keepFingerprint
	})
}

// RevokeUser revokes every session of the user, used after a password reset.
func (s *SessionStore) RevokeUser(userID string) int {
	return s.revokeWhere(func(session Session) bool {
		return session.UserID == userID
	})
}

func (s *SessionStore) revokeWhere(match func(Session) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for token, session := range s.sessions {
		if session.active(now) && match(session) {
			session.RevokedAt = &now
			s.sessions[token] = session
			count++
		}
	}
	return count
}

// Devices lists the user's active sessions, most recently used first.
func (s *SessionStore) Devices(userID string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.active(now) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out
}

func (s *SessionStore) Stats(userID string) TokenStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var stats TokenStats
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		stats.Total++
		switch {
		case session.RevokedAt != nil:
			stats.Revoked++
		case !now.Before(session.ExpiresAt):
			stats.Expired++
		default:
			stats.Active++
		}
	}
	return stats
}

// SessionActive reports whether any active refresh token belongs to the session id.
func (s *SessionStore) SessionActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for _, session := range s.sessions {
		if session.ID == id && session.active(now) {
			return true
		}
	}
	return false
}
