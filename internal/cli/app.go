package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/alm/internal/api"
	"github.com/me/alm/internal/auth"
	"github.com/me/alm/internal/config"
	"github.com/me/alm/internal/inference"
	"github.com/me/alm/internal/session"
	"github.com/me/alm/internal/store"
)

// App holds the clients a command needs, built once per invocation.
type App struct {
	Config  config.ClientConfig
	API     *api.Client
	Auth    *auth.Client
	Session *session.Manager

	kv store.KV
}

// NewApp opens the session store and wires the API, auth and session layers.
func NewApp(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	kv, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	apiClient := api.New(api.Config{
		BaseURL: cfg.APIURL,
		Prefix:  cfg.APIPrefix,
		Timeout: cfg.Timeout,
	}, logger)

	backend, err := auth.NewBackend(cfg.Transport, apiClient, logger)
	if err != nil {
		kv.Close()
		return nil, err
	}
	authClient := auth.NewClient(backend, store.NewSessionStore(kv), logger)

	return &App{
		Config:  cfg,
		API:     apiClient,
		Auth:    authClient,
		Session: session.NewManager(authClient, logger),
		kv:      kv,
	}, nil
}

// Close releases the session store.
func (a *App) Close() error {
	return a.kv.Close()
}

// PollConfig converts the configured polling budget.
func (a *App) PollConfig() inference.Config {
	pc := inference.Config{
		MaxAttempts: a.Config.Poll.MaxAttempts,
		Interval:    a.Config.Poll.Interval,
		Deadline:    a.Config.Poll.Deadline,
	}
	if a.Config.Poll.UnknownStatus == config.UnknownStatusFail {
		pc.UnknownStatus = inference.FailOnUnknown
	}
	return pc
}

var (
	errNotLoggedIn = errors.New("not logged in: run 'alm login' first")
	errNotAdmin    = errors.New("admin access required")
)

// requireAdmin loads the session and rejects anyone but an authenticated
// admin.
func (a *App) requireAdmin(ctx context.Context) (session.State, error) {
	st := a.Session.Init(ctx)
	if !st.IsAuthenticated {
		return st, errNotLoggedIn
	}
	if !st.User.IsAdmin() {
		return st, fmt.Errorf("%w: %s is not an admin", errNotAdmin, st.User.Email)
	}
	return st, nil
}
