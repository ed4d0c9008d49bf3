package mockapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = errors.New("unknown user")
)

// UserStore keeps accounts in memory with bcrypt password hashes.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
	cost    int
	now     func() time.Time
}

func NewUserStore(cost int, now func() time.Time) *UserStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if now == nil {
		now = time.Now
	}
	return &UserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		cost:    cost,
		now:     now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) Create(name, email, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := s.byEmail[key]; exists {
		return User{}, ErrEmailTaken
	}

	user := User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        key,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	s.byID[user.ID] = user
	s.byEmail[key] = user.ID
	return user, nil
}

func (s *UserStore) Authenticate(email, password string) (User, error) {
	user, ok := s.ByEmail(email)
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserStore) ByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	return user, ok
}

func (s *UserStore) ByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, false
	}
	return s.byID[id], true
}

func (s *UserStore) SetPassword(id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return ErrUnknownUser
	}
	user.PasswordHash = hash
	s.byID[id] = user
	return nil
}
