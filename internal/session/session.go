// Package session keeps the client's login state: it logs in, persists the
// token between runs, refreshes it before it expires and announces every
// change on streams the feed subscribes to.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blackmichael/postboard/internal/client"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/stream"
)

// Manager implements feed.AuthSource and feed.RefreshSource.
type Manager struct {
	api    *client.Client
	path   string
	logger *slog.Logger
	now    func() time.Time

	// refreshDelay returns how long to wait before refreshing a token that
	// expires in remaining.
	refreshDelay func(remaining time.Duration) time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	current *client.Session
	timer   *time.Timer

	status     *stream.Broadcaster[bool]
	identities *stream.Broadcaster[domain.Identity]
	refresh    *stream.Broadcaster[struct{}]
}

// NewManager creates a Manager that persists sessions to path. An empty
// path keeps the session in memory only. The manager becomes api's token
// source.
func NewManager(api *client.Client, path string, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		api:    api,
		path:   path,
		logger: logger,
		now:    time.Now,
		refreshDelay: func(remaining time.Duration) time.Duration {
			return remaining * 4 / 5
		},
		ctx:        ctx,
		cancel:     cancel,
		status:     stream.NewBroadcaster[bool](0),
		identities: stream.NewBroadcaster[domain.Identity](0),
		refresh:    stream.NewBroadcaster[struct{}](0),
	}
	api.SetTokenSource(m.Token)
	return m
}

// Login authenticates with the server and starts the session.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	sess, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := m.save(sess); err != nil {
		m.logger.Warn("failed to persist session", "error", err)
	}
	m.start(sess)
	m.logger.Info("logged in", "user_id", sess.User.ID)
	return nil
}

// Restore resumes a session saved by an earlier Login. It reports false if
// there is no saved session or it has expired.
func (m *Manager) Restore() (bool, error) {
	sess, err := m.load()
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	if !sess.ExpiresAt.After(m.now()) {
		m.logger.Info("saved session expired", "expired_at", sess.ExpiresAt)
		return false, m.remove()
	}

	m.start(sess)
	m.logger.Info("session restored", "user_id", sess.User.ID, "expires_at", sess.ExpiresAt)
	return true, nil
}

// Logout ends the session and forgets the saved token.
func (m *Manager) Logout() error {
	m.end()
	m.logger.Info("logged out")
	return m.remove()
}

// Token returns the current bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Identity returns the signed in user, or the zero Identity.
func (m *Manager) Identity() domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Identity{}
	}
	return m.current.User
}

func (m *Manager) SubscribeAuthStatus() *stream.Subscription[bool] {
	return m.status.Subscribe()
}

func (m *Manager) SubscribeIdentity() *stream.Subscription[domain.Identity] {
	return m.identities.Subscribe()
}

func (m *Manager) SubscribeRefresh() *stream.Subscription[struct{}] {
	return m.refresh.Subscribe()
}

// TriggerRefresh asks every subscriber to reload.
func (m *Manager) TriggerRefresh() {
	m.refresh.Publish(struct{}{})
}

// Close stops the refresh timer and ends all subscriptions. The saved
// session is kept.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.status.Close()
	m.identities.Close()
	m.refresh.Close()
}

func (m *Manager) start(sess *client.Session) {
	m.mu.Lock()
	m.current = sess
	m.schedule(sess)
	m.mu.Unlock()

	m.status.Publish(true)
	m.identities.Publish(sess.User)
}

func (m *Manager) end() {
	m.mu.Lock()
	was := m.current != nil
	m.current = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	if was {
		m.status.Publish(false)
	}
}

// schedule arms the token refresh. Callers hold mu.
func (m *Manager) schedule(sess *client.Session) {
	if m.timer != nil {
		m.timer.Stop()
	}
	delay := m.refreshDelay(sess.ExpiresAt.Sub(m.now()))
	if delay < 0 {
		delay = 0
	}
	m.timer = time.AfterFunc(delay, func() { m.refreshToken(sess.Token) })
}

func (m *Manager) refreshToken(token string) {
	if m.ctx.Err() != nil || m.Token() != token {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	sess, err := m.api.Refresh(ctx, token)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.logger.Error("token refresh failed, logging out", "error", err)
		m.end()
		if err := m.remove(); err != nil {
			m.logger.Warn("failed to remove session file", "error", err)
		}
		return
	}

	m.mu.Lock()
	if m.current == nil || m.current.Token != token {
		// logged out or replaced while the refresh was in flight
		m.mu.Unlock()
		return
	}
	m.current = sess
	m.schedule(sess)
	m.mu.Unlock()

	if err := m.save(sess); err != nil {
		m.logger.Warn("failed to persist session", "error", err)
	}
	m.logger.Info("token refreshed", "expires_at", sess.ExpiresAt)

	m.identities.Publish(sess.User)
	m.TriggerRefresh()
}

type sessionFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

func (m *Manager) save(sess *client.Session) error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(sessionFile{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		UserID:    sess.User.ID,
		FirstName: sess.User.FirstName,
		LastName:  sess.User.LastName,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (m *Manager) load() (*client.Session, error) {
	if m.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", m.path, err)
	}
	if f.Token == "" {
		return nil, nil
	}
	return &client.Session{
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt,
		User:      domain.Identity{ID: f.UserID, FirstName: f.FirstName, LastName: f.LastName},
	}, nil
}

func (m *Manager) remove() error {
	if m.path == "" {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
