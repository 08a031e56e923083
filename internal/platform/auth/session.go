package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned by Token when nobody is logged in.
var ErrNoCredential = errors.New("auth: no credential")

// Session holds the bearer credential for the current login. Login
// populates it, Logout clears it; API clients read it per request so a
// logout takes effect on the next call.
type Session struct {
	mu     sync.RWMutex
	token  string
	claims *Claims
}

func NewSession() *Session {
	return &Session{}
}

// Login stores token. The token is opaque to the client; when it happens
// to be a JWT its claims are decoded without verification so the UI can
// tell which comments belong to the current user.
func (s *Session) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoCredential
	}
	var claims *Claims
	c := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, c); err == nil {
		claims = c
	}

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.mu.Unlock()
	return nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.claims = nil
	s.mu.Unlock()
}

func (s *Session) Token() (string, error) {
	if s == nil {
		return "", ErrNoCredential
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// Handle returns the author handle of the logged-in account, or "" when
// unknown.
func (s *Session) Handle() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims.Handle()
}

// Expired reports whether the token carries an expiry before now. Opaque
// tokens never report expired; the API is the judge.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.ExpiresAt == nil {
		return false
	}
	return now.After(s.claims.ExpiresAt.Time)
}
