// Package memstore keeps users and verification tokens in process memory.
// It backs STORE_DRIVER=memory for local runs and scenario tests; nothing
// survives a restart.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-signup-verify/internal/domain"
)

// Users is a map-backed user store with an email index.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

func NewUsers() *Users {
	return &Users{byID: make(map[string]domain.User), byEmail: make(map[string]string)}
}

// Create stores u, failing with ErrConflict when the id or email is taken.
func (s *Users) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.UserID]; ok {
		return fmt.Errorf("user %s already exists: %w", u.UserID, domain.ErrConflict)
	}
	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	s.byID[u.UserID] = *u
	s.byEmail[u.Email] = u.UserID
	return nil
}

func (s *Users) Get(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	u := s.byID[id]
	return &u, nil
}

func (s *Users) MarkVerified(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	u.IsVerified = true
	u.UpdatedAt = at
	s.byID[userID] = u
	return nil
}

// Len returns the number of stored users.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Tokens is a map-backed verification token store keyed by user.
type Tokens struct {
	mu     sync.RWMutex
	byUser map[string]map[string]domain.VerificationToken
}

func NewTokens() *Tokens {
	return &Tokens{byUser: make(map[string]map[string]domain.VerificationToken)}
}

func (s *Tokens) Put(_ context.Context, t *domain.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byUser[t.UserID]
	if !ok {
		m = make(map[string]domain.VerificationToken)
		s.byUser[t.UserID] = m
	}
	m[t.TokenID] = *t
	return nil
}

func (s *Tokens) GetByLinkToken(_ context.Context, token string) (*domain.VerificationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.byUser {
		for _, t := range m {
			if t.Type == domain.MethodLink && t.Token == token {
				return &t, nil
			}
		}
	}
	return nil, fmt.Errorf("link token not found: %w", domain.ErrNotFound)
}

func (s *Tokens) GetOTP(_ context.Context, userID, code string) (*domain.VerificationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.byUser[userID] {
		if t.Type == domain.MethodOTP && t.OTP == code {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
}

func (s *Tokens) Delete(_ context.Context, userID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byUser[userID]; ok {
		delete(m, tokenID)
		if len(m) == 0 {
			delete(s.byUser, userID)
		}
	}
	return nil
}

func (s *Tokens) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
	return nil
}

// ForUser returns a copy of every token held for userID.
func (s *Tokens) ForUser(userID string) []domain.VerificationToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.VerificationToken, 0, len(s.byUser[userID]))
	for _, t := range s.byUser[userID] {
		out = append(out, t)
	}
	return out
}

// Len returns the number of stored tokens.
func (s *Tokens) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.byUser {
		n += len(m)
	}
	return n
}

// Sweep drops tokens whose purge deadline passed before now and reports how
// many went. Recently expired tokens stay so lookups can still report them.
func (s *Tokens) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for uid, m := range s.byUser {
		for id, t := range m {
			if t.Purgeable(now) {
				delete(m, id)
				removed++
			}
		}
		if len(m) == 0 {
			delete(s.byUser, uid)
		}
	}
	return removed
}

// Run sweeps purgeable tokens every interval until ctx is cancelled.
func (s *Tokens) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
