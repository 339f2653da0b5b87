package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/alm/pkg/model"
	"github.com/me/alm/pkg/token"
)

// DemoUserID is the id of every user fabricated by a demo login.
const DemoUserID = "demo123"

// DemoBackend fabricates sessions without any server. Credentials are not
// checked.
type DemoBackend struct {
	now   func() time.Time
	newID func() string
}

// NewDemoBackend creates a demo backend.
func NewDemoBackend() *DemoBackend {
	return &DemoBackend{now: time.Now, newID: uuid.NewString}
}

// Login returns a session for email. The name is the local part of the
// address and the role is admin iff the address contains "admin".
func (b *DemoBackend) Login(_ context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	name, _, _ := strings.Cut(req.Email, "@")
	role := model.RoleUser
	if strings.Contains(req.Email, "admin") {
		role = model.RoleAdmin
	}
	return b.issue(model.User{
		ID:    DemoUserID,
		Name:  name,
		Email: req.Email,
		Role:  role,
	})
}

// Register returns a session for a new user with a random id. Demo
// registrations are never admins.
func (b *DemoBackend) Register(_ context.Context, req model.RegisterRequest) (*model.LoginResponse, error) {
	return b.issue(model.User{
		ID:    b.newID(),
		Name:  req.Name,
		Email: req.Email,
		Role:  model.RoleUser,
	})
}

// Refresh re-issues the demo token for the user it embeds.
func (b *DemoBackend) Refresh(_ context.Context, tok string) (string, error) {
	u, err := token.DemoUser(tok)
	if err != nil {
		return "", err
	}
	return token.DemoToken(*u)
}

// Me decodes the user embedded in a demo token.
func (b *DemoBackend) Me(_ context.Context, tok string) (*model.User, error) {
	if tok == "" {
		return nil, errors.New("not authenticated")
	}
	return token.DemoUser(tok)
}

func (b *DemoBackend) issue(u model.User) (*model.LoginResponse, error) {
	u.CreatedAt = b.now().UTC().Format(time.RFC3339)
	tok, err := token.DemoToken(u)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{User: u, Token: tok}, nil
}
