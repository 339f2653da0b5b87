package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/me/alm/pkg/model"
)

// Persisted keys of the session record.
const (
	TokenKey = "alm_auth_token"
	UserKey  = "alm_user"
)

// SessionStore mirrors the auth token and user record into a KV.
type SessionStore struct {
	kv KV
}

// NewSessionStore wraps kv.
func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Token returns the stored token, or "" when there is none.
func (s *SessionStore) Token(ctx context.Context) (string, error) {
	tok, _, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return tok, nil
}

// SetToken stores tok.
func (s *SessionStore) SetToken(ctx context.Context, tok string) error {
	if err := s.kv.Set(ctx, TokenKey, tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// User returns the stored user. A missing, unparsable or empty record
// yields nil.
func (s *SessionStore) User(ctx context.Context) (*model.User, error) {
	raw, ok, err := s.kv.Get(ctx, UserKey)
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u == (model.User{}) {
		return nil, nil
	}
	return &u, nil
}

// SetUser stores u as JSON.
func (s *SessionStore) SetUser(ctx context.Context, u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.kv.Set(ctx, UserKey, string(data)); err != nil {
		return fmt.Errorf("write user: %w", err)
	}
	return nil
}

// Save stores the token and the user of a new session together: either both
// keys are replaced or neither is.
func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.kv.SetMulti(ctx, map[string]string{
		TokenKey: sess.Token,
		UserKey:  string(data),
	}); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load reads both keys back.
func (s *SessionStore) Load(ctx context.Context) (*model.Session, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.User(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Session{Token: tok, User: u}, nil
}

// Clear removes both keys. Clearing an empty store is fine.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, TokenKey, UserKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// RawUser returns the persisted user record exactly as stored.
func (s *SessionStore) RawUser(ctx context.Context) (string, bool, error) {
	return s.kv.Get(ctx, UserKey)
}
