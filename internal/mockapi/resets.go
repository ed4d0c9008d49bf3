package mockapi

import (
	"sync"
	"time"

	"github.com/animestream/authcore/internal/resetlink"
	"github.com/google/uuid"
)

const resetTokenTTL = time.Hour

type resetGrant struct {
	email     string
	expiresAt time.Time
}

// ResetStore tracks outstanding password reset tokens and the links "mailed" for them.
type ResetStore struct {
	mu          sync.Mutex
	grants      map[string]resetGrant
	outbox      []string
	frontendURL string
	now         func() time.Time
}

func NewResetStore(frontendURL string, now func() time.Time) *ResetStore {
	if now == nil {
		now = time.Now
	}
	return &ResetStore{
		grants:      make(map[string]resetGrant),
		frontendURL: frontendURL,
		now:         now,
	}
}

// Issue creates a reset token for email and returns the link sent to the user.
func (s *ResetStore) Issue(email string) string {
	token := uuid.New().String()
	link := resetlink.Link(s.frontendURL, token, email)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[token] = resetGrant{email: normalizeEmail(email), expiresAt: s.now().Add(resetTokenTTL)}
	s.outbox = append(s.outbox, link)
	return link
}

// Consume validates and burns a reset token.
func (s *ResetStore) Consume(token, email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[token]
	if !ok {
		return false
	}
	delete(s.grants, token)
	return grant.email == normalizeEmail(email) && s.now().Before(grant.expiresAt)
}

// Outbox returns the links issued so far.
func (s *ResetStore) Outbox() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.outbox...)
}
