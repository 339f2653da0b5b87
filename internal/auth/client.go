package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/me/alm/internal/logging"
	"github.com/me/alm/internal/store"
	"github.com/me/alm/pkg/model"
	"github.com/me/alm/pkg/token"
)

// Generic messages used when the server gives no detail.
const (
	MsgLoginFailed    = "login failed"
	MsgRegisterFailed = "registration failed"
	MsgProfileFailed  = "failed to fetch profile"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// Error is a failure whose server response carried no detail. Message is
// the generic text for the operation.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError rejects input before anything is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Client manages the persisted session: it writes token and user after a
// successful login or registration and clears them on logout or a failed
// refresh.
type Client struct {
	backend  Backend
	sessions *store.SessionStore
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates an auth client.
func NewClient(backend Backend, sessions *store.SessionStore, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		backend:  backend,
		sessions: sessions,
		logger:   logging.Component(logger, "auth"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates and persists the resulting session before returning.
// A server rejection is returned with the server's message; a transport
// failure is returned unchanged unless the backend degrades to demo mode.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := c.backend.Login(ctx, model.LoginRequest{Email: email, Password: password})
	if err != nil {
		c.logger.Debug("login rejected", "email", email, "error", err)
		return nil, surface(err, MsgLoginFailed)
	}
	return c.persist(ctx, resp)
}

// Register creates an account and persists its session, like Login.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.Session, error) {
	if err := ValidateRegistration(req); err != nil {
		return nil, err
	}
	resp, err := c.backend.Register(ctx, req)
	if err != nil {
		c.logger.Debug("registration rejected", "email", req.Email, "error", err)
		return nil, surface(err, MsgRegisterFailed)
	}
	return c.persist(ctx, resp)
}

func (c *Client) persist(ctx context.Context, resp *model.LoginResponse) (*model.Session, error) {
	user := resp.User
	sess := &model.Session{User: &user, Token: resp.Token}
	if err := c.sessions.Save(ctx, sess); err != nil {
		// The previous session must not outlive a failed replacement.
		if cerr := c.sessions.Clear(context.WithoutCancel(ctx)); cerr != nil {
			c.logger.Error("clear session after failed write", "error", cerr)
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}
	c.logger.Info("session started", "email", user.Email, "role", user.Role, "demo", token.IsDemo(resp.Token))
	return sess, nil
}

// Logout clears the persisted session. It is idempotent.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.logger.Debug("session cleared")
	return nil
}

// IsAuthenticated reports whether the persisted token is usable now. Demo
// tokens always are; other tokens until their exp. Unreadable state counts
// as logged out.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	tok, err := c.sessions.Token(ctx)
	if err != nil {
		c.logger.Warn("read token", "error", err)
		return false
	}
	return token.Valid(tok, c.now())
}

// IsAdmin reports whether the persisted user has the admin role.
func (c *Client) IsAdmin(ctx context.Context) bool {
	u, err := c.sessions.User(ctx)
	if err != nil {
		c.logger.Warn("read user", "error", err)
		return false
	}
	return u.IsAdmin()
}

// RefreshToken exchanges the persisted token for a new one and stores it.
// Any failure clears the session and returns *model.SessionExpiredError.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	tok, err := c.sessions.Token(ctx)
	if err == nil {
		var fresh string
		if fresh, err = c.backend.Refresh(ctx, tok); err == nil {
			if err = c.sessions.SetToken(ctx, fresh); err == nil {
				c.logger.Debug("token refreshed", "demo", token.IsDemo(fresh))
				return fresh, nil
			}
		}
	}

	c.logger.Warn("token refresh failed, logging out", "error", err)
	if lerr := c.Logout(context.WithoutCancel(ctx)); lerr != nil {
		c.logger.Error("clear session after failed refresh", "error", lerr)
	}
	return "", &model.SessionExpiredError{Err: err}
}

// CurrentUser fetches the profile of the session owner and persists it.
// Failure leaves the session untouched.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	tok, err := c.sessions.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	u, err := c.backend.Me(ctx, tok)
	if err != nil {
		return nil, surface(err, MsgProfileFailed)
	}
	if err := c.sessions.SetUser(ctx, u); err != nil {
		return nil, fmt.Errorf("persist user: %w", err)
	}
	return u, nil
}

// Token returns the persisted token, or "" if there is none.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.sessions.Token(ctx)
}

// User returns the persisted user, or nil if there is none.
func (c *Client) User(ctx context.Context) (*model.User, error) {
	return c.sessions.User(ctx)
}

// Session returns the persisted token and user together.
func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	return c.sessions.Load(ctx)
}

// ValidateRegistration checks the signup form.
func ValidateRegistration(req model.RegisterRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return &ValidationError{Field: "name", Message: "name is required"}
	case strings.TrimSpace(req.Email) == "":
		return &ValidationError{Field: "email", Message: "email is required"}
	case utf8.RuneCountInString(req.Password) < MinPasswordLength:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	case req.ConfirmPassword != "" && req.ConfirmPassword != req.Password:
		return &ValidationError{Field: "confirmPassword", Message: "passwords do not match"}
	}
	return nil
}

// surface maps a backend failure to what the user sees: the server's detail
// verbatim, or the generic message when the server sent none. Transport
// failures pass through.
func surface(err error, generic string) error {
	var se *model.ServerError
	switch {
	case errors.As(err, &se):
		if se.Detail != "" {
			return se
		}
		return &Error{Message: generic, Err: err}
	case model.IsTransportError(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &Error{Message: generic + ": " + err.Error(), Err: err}
	}
}
