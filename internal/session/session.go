// Package session holds the signed-in identity in the injected Storage.
//
// The identity lives under storage.KeySession as JSON. An absent or malformed
// value means "unauthenticated"; nothing is ever read from ambient state.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/shopsync/internal/backend"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/storage"
)

// User-facing messages.
const (
	MsgLoginRequired = "Please login first"
	MsgAdminOnly     = "Access denied. Admins only."
	MsgRegistered    = "Registration successful!"
)

// Manager signs users in and out.
type Manager struct {
	storage  storage.Storage
	identity backend.Identity
	bus      *notify.Bus
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes TopicSessionChanged on login and logout.
func WithBus(b *notify.Bus) Option {
	return func(m *Manager) {
		m.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a Manager. identity may be nil when only Current and Require
// are used.
func New(st storage.Storage, identity backend.Identity, opts ...Option) *Manager {
	m := &Manager{
		storage:  st,
		identity: identity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the stored identity. ok is false when the identity is
// absent, unreadable or incomplete.
func (m *Manager) Current(ctx context.Context) (model.Session, bool) {
	raw, ok, err := m.storage.Get(ctx, storage.KeySession)
	if err != nil {
		m.logger.Warn("session lookup failed", "error", err)
		return model.Session{}, false
	}
	if !ok {
		return model.Session{}, false
	}

	var s model.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || !s.Valid() {
		m.logger.Debug("ignoring malformed session", "error", err)
		return model.Session{}, false
	}
	return s, true
}

// Token returns the bearer token of the current session, or "".
// Its signature matches backend.TokenSource.
func (m *Manager) Token(ctx context.Context) string {
	s, _ := m.Current(ctx)
	return s.Token
}

// Require returns the current session if it satisfies role. Any signed-in
// session satisfies RoleUser; RoleAdmin requires an admin session.
func (m *Manager) Require(ctx context.Context, role model.Role) (model.Session, error) {
	s, ok := m.Current(ctx)
	if !ok {
		return model.Session{}, failure.Authentication(MsgLoginRequired, 0)
	}
	if role == model.RoleAdmin && !s.IsAdmin() {
		return model.Session{}, failure.Authentication(MsgAdminOnly, 403)
	}
	return s, nil
}

// Login authenticates and stores the identity.
func (m *Manager) Login(ctx context.Context, username, password string) (model.Session, error) {
	username = normalize(username)
	if username == "" || password == "" {
		return model.Session{}, failure.Validation("Username and password are required")
	}

	s, err := m.identity.Login(ctx, model.Credentials{Username: username, Password: password})
	if err != nil {
		m.logger.Info("login failed", "username", username, "kind", failure.KindOf(err))
		return model.Session{}, err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return model.Session{}, fmt.Errorf("encode session: %w", err)
	}
	if err := m.storage.Set(ctx, storage.KeySession, string(data)); err != nil {
		return model.Session{}, fmt.Errorf("store session: %w", err)
	}

	m.logger.Info("signed in", "username", s.Username, "role", s.Role)
	m.bus.Publish(notify.Event{Topic: notify.TopicSessionChanged, Source: "login", Message: welcome(s)})
	return s, nil
}

func welcome(s model.Session) string {
	if s.IsAdmin() {
		return "Login Successful! Welcome Admin."
	}
	return "Login Successful! Welcome " + s.Username
}

// Logout removes the identity and the cart.
func (m *Manager) Logout(ctx context.Context) error {
	for _, key := range []string{storage.KeySession, storage.KeyCart} {
		if err := m.storage.Remove(ctx, key); err != nil {
			return fmt.Errorf("logout: remove %s: %w", key, err)
		}
	}
	m.logger.Info("signed out")
	m.bus.Publish(notify.Event{Topic: notify.TopicSessionChanged, Source: "logout"})
	return nil
}

// Register validates draft locally and then creates the account.
func (m *Manager) Register(ctx context.Context, draft model.UserDraft) (string, error) {
	draft.Username = normalize(draft.Username)
	draft.Email = strings.TrimSpace(draft.Email)
	if err := ValidateRegistration(draft); err != nil {
		return "", err
	}

	text, err := m.identity.Register(ctx, draft)
	if err != nil {
		return "", err
	}
	if text == "" {
		text = MsgRegistered
	}
	return text, nil
}

// normalize trims and NFC-normalizes a username so visually identical
// input maps to one account.
func normalize(username string) string {
	return norm.NFC.String(strings.TrimSpace(username))
}
