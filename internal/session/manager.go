// Package session holds the in-process view of who is logged in and keeps
// it in step with the persisted store through the auth client.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/me/alm/internal/logging"
	"github.com/me/alm/pkg/model"
)

// Authenticator is the subset of the auth client the manager drives.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.Session, error)
	Logout(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (*model.User, error)
	Session(ctx context.Context) (*model.Session, error)
}

// State is a snapshot of the session.
type State struct {
	User            *model.User
	Token           string
	IsAuthenticated bool
	IsLoading       bool
}

// Manager owns the session state. It starts loading until Init runs.
type Manager struct {
	auth   Authenticator
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// NewManager creates a manager in the loading state.
func NewManager(auth Authenticator, logger *slog.Logger) *Manager {
	return &Manager{
		auth:      auth,
		logger:    logging.Component(logger, "session"),
		state:     State{IsLoading: true},
		listeners: make(map[int]func(State)),
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to run after every state change. The returned
// function removes it.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// update applies fn to the state and notifies listeners outside the lock.
func (m *Manager) update(fn func(*State)) State {
	m.mu.Lock()
	fn(&m.state)
	snapshot := m.state
	listeners := make([]func(State), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return snapshot
}

// Init reconciles with the persisted session once. A complete and valid
// session is adopted and its profile refreshed from the server; if that
// refresh fails the persisted data is kept. Anything else is cleared.
func (m *Manager) Init(ctx context.Context) State {
	sess, err := m.auth.Session(ctx)
	if err != nil {
		m.logger.Warn("read persisted session", "error", err)
		sess = &model.Session{}
	}

	if sess.Token == "" || sess.User == nil || !m.auth.IsAuthenticated(ctx) {
		if err := m.auth.Logout(ctx); err != nil {
			m.logger.Warn("clear stale session", "error", err)
		}
		return m.update(func(s *State) { *s = State{} })
	}

	m.update(func(s *State) {
		*s = State{User: sess.User, Token: sess.Token, IsAuthenticated: true}
	})

	u, err := m.auth.CurrentUser(ctx)
	if err != nil {
		m.logger.Warn("refresh profile, keeping stored user", "error", err)
		return m.State()
	}
	return m.update(func(s *State) { s.User = u })
}

// Login authenticates and publishes the new session. On failure only the
// loading flag is reset and the error is returned for display.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.update(func(s *State) { s.IsLoading = true })
	sess, err := m.auth.Login(ctx, email, password)
	return m.finish(sess, err)
}

// Register creates an account and publishes its session, like Login.
func (m *Manager) Register(ctx context.Context, req model.RegisterRequest) error {
	m.update(func(s *State) { s.IsLoading = true })
	sess, err := m.auth.Register(ctx, req)
	return m.finish(sess, err)
}

func (m *Manager) finish(sess *model.Session, err error) error {
	if err != nil {
		m.update(func(s *State) { s.IsLoading = false })
		return err
	}
	m.update(func(s *State) {
		*s = State{User: sess.User, Token: sess.Token, IsAuthenticated: true}
	})
	return nil
}

// Logout clears both the persisted and in-process session. The in-process
// state is cleared even if the store fails.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.auth.Logout(ctx)
	if err != nil {
		m.logger.Error("clear persisted session", "error", err)
	}
	m.update(func(s *State) { *s = State{} })
	return err
}

// RefreshUser reloads the profile from the server. Failure forces a logout
// and returns the error that caused it.
func (m *Manager) RefreshUser(ctx context.Context) error {
	u, err := m.auth.CurrentUser(ctx)
	if err != nil {
		m.logger.Warn("refresh profile failed, logging out", "error", err)
		if lerr := m.Logout(context.WithoutCancel(ctx)); lerr != nil {
			m.logger.Error("logout after failed refresh", "error", lerr)
		}
		return err
	}
	m.update(func(s *State) { s.User = u })
	return nil
}
