package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/client"
	"github.com/blackmichael/postboard/internal/config"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/httpserver"
	"github.com/blackmichael/postboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAPI starts a server with one registered user, jane@example.com / pw.
func newAPI(t *testing.T) string {
	t.Helper()
	logger := discardLogger()

	repo, err := store.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	accounts := domain.NewAccountService(repo, auth.NewHasher(bcrypt.MinCost), logger)
	_, err = accounts.Signup(context.Background(), domain.SignupRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Password: "pw"})
	require.NoError(t, err)

	s := httpserver.NewServer(
		&config.Config{AuthRateLimit: 100, MaxImageBytes: 1 << 20},
		domain.NewPostService(repo, nil, logger),
		accounts,
		tokens,
		http.NotFoundHandler(),
		logger,
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func newManager(t *testing.T, serverURL, path string) *Manager {
	t.Helper()
	m := NewManager(client.NewClient(serverURL), path, discardLogger())
	t.Cleanup(m.Close)
	return m
}

func TestManager_LoginAndLogout(t *testing.T) {
	url := newAPI(t)
	path := filepath.Join(t.TempDir(), "session.json")
	m := newManager(t, url, path)

	status := m.SubscribeAuthStatus()
	identities := m.SubscribeIdentity()

	assert.False(t, m.Authenticated())
	require.NoError(t, m.Login(context.Background(), "jane@example.com", "pw"))

	assert.True(t, m.Authenticated())
	assert.NotEmpty(t, m.Token())
	assert.Equal(t, "Jane Doe", m.Identity().DisplayName())
	assert.True(t, <-status.C())
	assert.Equal(t, "Jane", (<-identities.C()).FirstName)
	assert.FileExists(t, path)

	require.NoError(t, m.Logout())
	assert.False(t, m.Authenticated())
	assert.Empty(t, m.Token())
	assert.Equal(t, domain.Identity{}, m.Identity())
	assert.False(t, <-status.C())
	assert.NoFileExists(t, path)

	require.NoError(t, m.Logout(), "logging out twice is harmless")
}

func TestManager_LoginFailure(t *testing.T) {
	m := newManager(t, newAPI(t), "")

	err := m.Login(context.Background(), "jane@example.com", "wrong")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.False(t, m.Authenticated())
}

func TestManager_Restore(t *testing.T) {
	url := newAPI(t)
	path := filepath.Join(t.TempDir(), "session.json")

	first := newManager(t, url, path)
	require.NoError(t, first.Login(context.Background(), "jane@example.com", "pw"))
	token := first.Token()

	second := newManager(t, url, path)
	ok, err := second.Restore()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, second.Token())
	assert.True(t, second.Identity().Complete())
}

func TestManager_RestoreMissingOrExpired(t *testing.T) {
	dir := t.TempDir()

	m := newManager(t, "http://localhost", filepath.Join(dir, "absent.json"))
	ok, err := m.Restore()
	require.NoError(t, err)
	assert.False(t, ok)

	expired := filepath.Join(dir, "expired.json")
	require.NoError(t, os.WriteFile(expired, []byte(`{"token":"t","expiresAt":"2000-01-01T00:00:00Z","userId":"u1","firstName":"Jane","lastName":"Doe"}`), 0o600))
	m = newManager(t, "http://localhost", expired)
	ok, err = m.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, expired)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{`), 0o600))
	m = newManager(t, "http://localhost", corrupt)
	_, err = m.Restore()
	assert.Error(t, err)
}

func TestManager_ScheduledRefreshTriggersReload(t *testing.T) {
	m := newManager(t, newAPI(t), "")
	m.refreshDelay = func(time.Duration) time.Duration { return 20 * time.Millisecond }

	refresh := m.SubscribeRefresh()
	require.NoError(t, m.Login(context.Background(), "jane@example.com", "pw"))

	select {
	case <-refresh.C():
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh signal after token refresh")
	}
	assert.True(t, m.Authenticated())
	assert.NotEmpty(t, m.Token())
}

func TestManager_FailedRefreshLogsOut(t *testing.T) {
	url := newAPI(t)
	path := filepath.Join(t.TempDir(), "session.json")
	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"bogus","expiresAt":"`+expires+`","userId":"u1","firstName":"Jane","lastName":"Doe"}`), 0o600))

	m := newManager(t, url, path)
	m.refreshDelay = func(time.Duration) time.Duration { return 10 * time.Millisecond }
	status := m.SubscribeAuthStatus()

	ok, err := m.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, <-status.C())

	select {
	case v := <-status.C():
		assert.False(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("rejected refresh did not log out")
	}
	assert.False(t, m.Authenticated())
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)
}

func TestManager_TriggerRefreshAndClose(t *testing.T) {
	m := NewManager(client.NewClient("http://localhost"), "", discardLogger())
	sub := m.SubscribeRefresh()

	m.TriggerRefresh()
	_, ok := <-sub.C()
	assert.True(t, ok)

	m.Close()
	_, ok = <-sub.C()
	assert.False(t, ok, "Close ends subscriptions")
}
