package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session holds the caller's credential. It is loaded at startup, set on
// sign-in and cleared on sign-out or when the server rejects the token.
// An empty path keeps the session in memory only.
type Session struct {
	mu    sync.RWMutex
	path  string
	state sessionState
	now   func() time.Time
}

type sessionState struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

func NewSession(path string) *Session {
	return &Session{path: path, now: time.Now}
}

// Load reads a persisted credential. A missing file means signed out.
func (s *Session) Load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// Set stores a fresh credential.
func (s *Session) Set(token, email string, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sessionState{AccessToken: token, Email: email, ExpiresAt: expiresAt}
	return s.persist()
}

// Clear forgets the credential.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sessionState{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Token returns the bearer token, or "" when signed out or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.ExpiresAt > 0 && s.now().Unix() >= s.state.ExpiresAt {
		return ""
	}
	return s.state.AccessToken
}

func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Email
}

func (s *Session) persist() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.Marshal(s.state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
