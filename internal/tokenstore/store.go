// Package tokenstore persists the client session across a short-lived session tier
// (access token, its expiry, cached user) and a persistent tier (refresh token, its
// expiry, device name), and answers validity questions over that state.
package tokenstore

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/storage"
	"github.com/rs/zerolog"
)

const (
	KeyAccessToken           = "access_token"
	KeyTokenExpiresAt        = "token_expires_at"
	KeyRefreshToken          = "refresh_token"
	KeyRefreshTokenExpiresAt = "refresh_token_expires_at"
	KeyUser                  = "user"
	KeyDeviceName            = "device_name"
)

const (
	DefaultBuffer    = 60 * time.Second
	DefaultAccessTTL = 900 * time.Second
	DefaultIOTimeout = 2 * time.Second
)

// Store never returns errors: tier failures are logged and read back as absent.
type Store struct {
	session    storage.Tier
	persistent storage.Tier

	now        func() time.Time
	buffer     time.Duration
	defaultTTL time.Duration
	timeout    time.Duration

	generation atomic.Uint64
	log        zerolog.Logger
}

type Option func(*Store)

// WithNow replaces the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBuffer sets the slack subtracted from every expiry.
func WithBuffer(d time.Duration) Option {
	return func(s *Store) { s.buffer = d }
}

// WithDefaultTTL sets the lifetime used when SetAccessToken gets no expiry.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) { s.defaultTTL = d }
}

// WithIOTimeout bounds each tier call.
func WithIOTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

func New(session, persistent storage.Tier, opts ...Option) *Store {
	s := &Store{
		session:    session,
		persistent: persistent,
		now:        time.Now,
		buffer:     DefaultBuffer,
		defaultTTL: DefaultAccessTTL,
		timeout:    DefaultIOTimeout,
		log:        logger.For(logger.STORE),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the store's clock.
func (s *Store) Now() time.Time { return s.now() }

// Buffer is the slack subtracted from every expiry.
func (s *Store) Buffer() time.Duration { return s.buffer }

func (s *Store) read(tier storage.Tier, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, ok, err := tier.Get(ctx, key)
	if err != nil {
		s.log.Error().Err(err).Str("tier", tier.Name()).Str("key", key).Msg("Failed to read auth value")
		return "", false
	}
	return v, ok
}

func (s *Store) write(tier storage.Tier, key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := tier.Set(ctx, key, value); err != nil {
		s.log.Error().Err(err).Str("tier", tier.Name()).Str("key", key).Msg("Failed to store auth value")
	}
}

func (s *Store) remove(tier storage.Tier, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := tier.Remove(ctx, key); err != nil {
		s.log.Error().Err(err).Str("tier", tier.Name()).Str("key", key).Msg("Failed to clear auth value")
	}
}

func (s *Store) readInt(tier storage.Tier, key string) (int64, bool) {
	v, ok := s.read(tier, key)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// SetAccessToken stores the token and its absolute expiry. expiresIn is in seconds;
// zero or negative means the default lifetime.
func (s *Store) SetAccessToken(token string, expiresIn int64) {
	if token == "" {
		return
	}
	ttl := time.Duration(expiresIn) * time.Second
	if expiresIn <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := s.now().Add(ttl).UnixMilli()

	s.write(s.session, KeyAccessToken, token)
	s.write(s.session, KeyTokenExpiresAt, strconv.FormatInt(expiresAt, 10))
	s.log.Debug().Dur("ttl", ttl).Msg("Access token stored")
}

func (s *Store) GetAccessToken() string {
	v, _ := s.read(s.session, KeyAccessToken)
	return v
}

// GetTokenExpiresAt returns the access token expiry in epoch milliseconds.
func (s *Store) GetTokenExpiresAt() (int64, bool) {
	return s.readInt(s.session, KeyTokenExpiresAt)
}

func (s *Store) ClearAccessToken() {
	s.remove(s.session, KeyAccessToken)
	s.remove(s.session, KeyTokenExpiresAt)
}

// SetRefreshToken stores the refresh token. An empty token is ignored, expiry included.
func (s *Store) SetRefreshToken(token string, expiry Expiry) {
	if token == "" {
		return
	}
	s.write(s.persistent, KeyRefreshToken, token)
	s.SetRefreshExpiry(expiry)
	s.log.Debug().Msg("Refresh token stored")
}

// SetRefreshExpiry updates only the refresh expiry. Unparseable values clear it.
func (s *Store) SetRefreshExpiry(expiry Expiry) {
	switch expiry.kind {
	case expiryKeep:
		return
	case expiryNever:
		s.remove(s.persistent, KeyRefreshTokenExpiresAt)
		return
	}

	expiresAt, ok := normalizeExpiry(expiry.value, s.now())
	if !ok || expiresAt == 0 {
		s.log.Debug().Interface("value", expiry.value).Msg("Unrecognised refresh expiry, treating as non-expiring")
		s.remove(s.persistent, KeyRefreshTokenExpiresAt)
		return
	}
	s.write(s.persistent, KeyRefreshTokenExpiresAt, strconv.FormatInt(expiresAt, 10))
}

func (s *Store) GetRefreshToken() string {
	v, _ := s.read(s.persistent, KeyRefreshToken)
	return v
}

// GetRefreshExpiresAt returns the refresh expiry in epoch milliseconds; false means
// the token does not expire client-side.
func (s *Store) GetRefreshExpiresAt() (int64, bool) {
	return s.readInt(s.persistent, KeyRefreshTokenExpiresAt)
}

func (s *Store) ClearRefreshToken() {
	s.remove(s.persistent, KeyRefreshToken)
	s.remove(s.persistent, KeyRefreshTokenExpiresAt)
}

// SetUser caches the profile as JSON. A nil or empty user is ignored.
func (s *Store) SetUser(user map[string]any) {
	if len(user) == 0 {
		return
	}
	data, err := json.Marshal(user)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode user data")
		return
	}
	s.write(s.session, KeyUser, string(data))
}

// GetUser returns nil when no user is cached or the cached value is corrupt.
func (s *Store) GetUser() map[string]any {
	raw, ok := s.read(s.session, KeyUser)
	if !ok || raw == "" {
		return nil
	}
	var user map[string]any
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.log.Error().Err(err).Msg("Failed to decode user data")
		return nil
	}
	return user
}

func (s *Store) ClearUser() {
	s.remove(s.session, KeyUser)
}

func (s *Store) SetDeviceName(name string) {
	if name == "" {
		return
	}
	s.write(s.persistent, KeyDeviceName, name)
}

func (s *Store) GetDeviceName() string {
	v, _ := s.read(s.persistent, KeyDeviceName)
	return v
}

func (s *Store) ClearDeviceName() {
	s.remove(s.persistent, KeyDeviceName)
}

// IsTokenExpired is true when no expiry is stored or now is within the buffer of it.
func (s *Store) IsTokenExpired() bool {
	expiresAt, ok := s.GetTokenExpiresAt()
	if !ok {
		return true
	}
	return s.now().UnixMilli() >= expiresAt-s.buffer.Milliseconds()
}

// IsRefreshExpired is false when no refresh expiry is recorded.
func (s *Store) IsRefreshExpired() bool {
	expiresAt, ok := s.GetRefreshExpiresAt()
	if !ok {
		return false
	}
	return s.now().UnixMilli() >= expiresAt-s.buffer.Milliseconds()
}

func (s *Store) HasValidToken() bool {
	if s.GetAccessToken() == "" {
		return false
	}
	return !s.IsTokenExpired()
}

func (s *Store) HasValidRefreshToken() bool {
	if s.GetRefreshToken() == "" {
		return false
	}
	return !s.IsRefreshExpired()
}

// IsAuthenticated holds when a cached user has a usable access or refresh token, or
// when no user is cached but a usable refresh token survived (a returning client whose
// profile will be reloaded lazily).
func (s *Store) IsAuthenticated() bool {
	hasUser := s.GetUser() != nil
	hasRefresh := s.HasValidRefreshToken()

	switch {
	case hasUser && s.HasValidToken():
		return true
	case hasUser && hasRefresh:
		return true
	case !hasUser && hasRefresh:
		return true
	}
	return false
}

// ClearAll wipes every field and advances the generation. Safe to call repeatedly.
func (s *Store) ClearAll() {
	s.generation.Add(1)
	s.ClearAccessToken()
	s.ClearRefreshToken()
	s.ClearUser()
	s.ClearDeviceName()
	s.log.Debug().Msg("All auth data cleared")
}

// Generation changes every time the session is cleared.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// AuthState is a diagnostic snapshot. Tokens themselves are not included.
type AuthState struct {
	HasAccessToken       bool           `json:"hasAccessToken"`
	HasRefreshToken      bool           `json:"hasRefreshToken"`
	RefreshExpiresAt     *int64         `json:"refreshExpiresAt"`
	HasUser              bool           `json:"hasUser"`
	HasValidToken        bool           `json:"hasValidToken"`
	HasValidRefreshToken bool           `json:"hasValidRefreshToken"`
	IsAuthenticated      bool           `json:"isAuthenticated"`
	TokenExpiresAt       *int64         `json:"tokenExpiresAt"`
	User                 map[string]any `json:"user"`
	DeviceName           string         `json:"deviceName,omitempty"`
	SessionTier          string         `json:"sessionTier"`
	PersistentTier       string         `json:"persistentTier"`
}

func (s *Store) GetAuthState() AuthState {
	state := AuthState{
		HasAccessToken:       s.GetAccessToken() != "",
		HasRefreshToken:      s.GetRefreshToken() != "",
		HasValidToken:        s.HasValidToken(),
		HasValidRefreshToken: s.HasValidRefreshToken(),
		IsAuthenticated:      s.IsAuthenticated(),
		User:                 s.GetUser(),
		DeviceName:           s.GetDeviceName(),
		SessionTier:          s.session.Name(),
		PersistentTier:       s.persistent.Name(),
	}
	state.HasUser = state.User != nil
	if v, ok := s.GetRefreshExpiresAt(); ok {
		state.RefreshExpiresAt = &v
	}
	if v, ok := s.GetTokenExpiresAt(); ok {
		state.TokenExpiresAt = &v
	}
	return state
}
