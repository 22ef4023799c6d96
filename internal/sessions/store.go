package sessions

import (
	"fmt"
	"sync"
	"time"
)

const defaultCodeAttempts = 64

// Store owns every Session record, keyed by code. Records are only ever inserted.
// The map lock is never held while a session lock is taken.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newCode  CodeGenerator
	attempts int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCodeGenerator replaces the random code source (tests use it to force collisions).
func WithCodeGenerator(gen CodeGenerator) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// WithCodeAttempts bounds how many codes are tried before Create gives up.
func WithCodeAttempts(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// NewStore creates an empty session store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		newCode:  RandomCode,
		attempts: defaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session for code.
func (s *Store) Get(code string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[code]
	return sess, ok
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// insert allocates an unused code and stores a new empty session under it.
// Generated codes that are already taken are re-rolled.
func (s *Store) insert(title string, createdAt time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.attempts; i++ {
		code := s.newCode()
		if _, taken := s.sessions[code]; taken {
			continue
		}
		sess := newSession(code, title, createdAt)
		s.sessions[code] = sess
		return sess, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrCodeExhausted, s.attempts)
}
