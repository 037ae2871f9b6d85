package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/observability"
)

// Session is the signed-in identity. The zero value is logged out.
type Session struct {
	User  *gateway.UserInfo `json:"user"`
	Token string            `json:"token,omitempty"`
}

// Authenticated is derived from the token; a token never exists without a
// user.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Store is the process-wide identity. Memory and storage change together
// under one lock.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	current Session
}

func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Rehydrate loads the persisted identity. Missing or malformed state leaves
// the store logged out and is not an error.
func (s *Store) Rehydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Session{}

	token, okToken, err := s.storage.Get(ctx, KeyToken)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	rawUser, okUser, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	if !okToken && !okUser {
		return nil
	}

	user, err := decodeUser(rawUser)
	if !okToken || !okUser || strings.TrimSpace(token) == "" || err != nil {
		observability.LoggerFromContext(ctx).Warn("discarding partial identity state",
			"has_token", okToken,
			"has_user", okUser,
			"decode_error", err,
		)
		return nil
	}
	s.current = Session{User: user, Token: token}
	return nil
}

// Login persists and adopts a login response.
func (s *Store) Login(ctx context.Context, resp gateway.LoginResponse) (Session, error) {
	token := strings.TrimSpace(resp.Token)
	if token == "" || resp.User == nil {
		return Session{}, ErrIncompleteSession
	}
	user := *resp.User
	raw, err := json.Marshal(user)
	if err != nil {
		return Session{}, fmt.Errorf("encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Put(ctx, map[string]string{KeyToken: token, KeyUser: string(raw)}); err != nil {
		return Session{}, fmt.Errorf("persist identity: %w", err)
	}
	s.current = Session{User: &user, Token: token}
	return s.current.clone(), nil
}

// Logout clears memory and storage. Logging out twice is the same as once.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Delete(ctx, KeyToken, KeyUser); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	s.current = Session{}
	return nil
}

func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated()
}

func (s *Store) Close() error {
	return s.storage.Close()
}

func (s Session) clone() Session {
	if s.User == nil {
		return s
	}
	u := *s.User
	s.User = &u
	return s
}

func decodeUser(raw string) (*gateway.UserInfo, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty user record")
	}
	var u gateway.UserInfo
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("user record without id")
	}
	return &u, nil
}
