// Package auth implements login, registration and token lifecycle on top of
// a persisted session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/alm/internal/api"
	"github.com/me/alm/internal/config"
	"github.com/me/alm/internal/logging"
	"github.com/me/alm/pkg/model"
	"github.com/me/alm/pkg/token"
)

// Backend is the transport strategy behind the auth client.
type Backend interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.LoginResponse, error)
	// Refresh exchanges the current token for a new one.
	Refresh(ctx context.Context, tok string) (string, error)
	// Me returns the profile of the token's owner.
	Me(ctx context.Context, tok string) (*model.User, error)
}

// NewBackend selects a backend for the transport mode (see config.Transport*).
func NewBackend(mode string, client *api.Client, logger *slog.Logger) (Backend, error) {
	switch mode {
	case config.TransportHTTP:
		return NewHTTPBackend(client), nil
	case config.TransportDemo:
		return NewDemoBackend(), nil
	case config.TransportAuto, "":
		return NewFallbackBackend(NewHTTPBackend(client), NewDemoBackend(), logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", mode)
	}
}

// HTTPBackend talks to the real /auth endpoints.
type HTTPBackend struct {
	client *api.Client
}

// NewHTTPBackend creates a backend over client.
func NewHTTPBackend(client *api.Client) *HTTPBackend {
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := b.client.PostJSON(ctx, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("login response carries no token")
	}
	return &resp, nil
}

func (b *HTTPBackend) Register(ctx context.Context, req model.RegisterRequest) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := b.client.PostJSON(ctx, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("register response carries no token")
	}
	return &resp, nil
}

// Refresh posts no body; the server identifies the session by cookie or by
// the bearer token.
func (b *HTTPBackend) Refresh(ctx context.Context, tok string) (string, error) {
	var resp model.RefreshResponse
	if err := b.client.PostJSON(ctx, "/auth/refresh", nil, &resp, bearer(tok)); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("refresh response carries no token")
	}
	return resp.Token, nil
}

func (b *HTTPBackend) Me(ctx context.Context, tok string) (*model.User, error) {
	var u model.User
	if err := b.client.GetJSON(ctx, "/auth/me", nil, &u, bearer(tok)); err != nil {
		return nil, err
	}
	if u == (model.User{}) {
		return nil, errors.New("GET /auth/me: empty profile")
	}
	return &u, nil
}

// bearer authenticates with tok unless it is a demo token, which the server
// would not recognize.
func bearer(tok string) api.RequestOption {
	if token.IsDemo(tok) {
		tok = ""
	}
	return api.WithBearer(tok)
}

// FallbackBackend uses primary and switches to demo for login and register
// when the server cannot be reached. A server that answers with an error is
// never bypassed.
type FallbackBackend struct {
	primary Backend
	demo    Backend
	logger  *slog.Logger
}

// NewFallbackBackend creates a backend that degrades to demo on transport
// failures.
func NewFallbackBackend(primary, demo Backend, logger *slog.Logger) *FallbackBackend {
	return &FallbackBackend{
		primary: primary,
		demo:    demo,
		logger:  logging.Component(logger, "auth"),
	}
}

func (b *FallbackBackend) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	resp, err := b.primary.Login(ctx, req)
	if err != nil && model.IsTransportError(err) {
		b.logger.Warn("backend unavailable, demo mode enabled", "error", err)
		return b.demo.Login(ctx, req)
	}
	return resp, err
}

func (b *FallbackBackend) Register(ctx context.Context, req model.RegisterRequest) (*model.LoginResponse, error) {
	resp, err := b.primary.Register(ctx, req)
	if err != nil && model.IsTransportError(err) {
		b.logger.Warn("backend unavailable, demo mode enabled", "error", err)
		return b.demo.Register(ctx, req)
	}
	return resp, err
}

func (b *FallbackBackend) Refresh(ctx context.Context, tok string) (string, error) {
	if token.IsDemo(tok) {
		return b.demo.Refresh(ctx, tok)
	}
	return b.primary.Refresh(ctx, tok)
}

func (b *FallbackBackend) Me(ctx context.Context, tok string) (*model.User, error) {
	if token.IsDemo(tok) {
		return b.demo.Me(ctx, tok)
	}
	return b.primary.Me(ctx, tok)
}
