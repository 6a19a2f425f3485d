package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func seedUser(t *testing.T, r *Repository, id, email string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:           id,
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func TestRepository_Users(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u := seedUser(t, r, "u1", "jane@example.com")

	got, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	got, err = r.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = r.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	dup := &domain.User{ID: "u2", FirstName: "J", LastName: "D", Email: "jane@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	assert.ErrorIs(t, r.CreateUser(ctx, dup), domain.ErrEmailTaken)
}

func TestRepository_PostLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedUser(t, r, "u1", "jane@example.com")

	post := &domain.Post{
		ID:      "p1",
		Creator: "u1",
		Content: "hello example.com",
		Image:   &domain.Image{MimeType: "image/png", Binary: []byte{0x89, 'P', 'N', 'G'}},
		Date:    time.UnixMilli(1_700_000_000_000).UTC(),
	}
	require.NoError(t, r.CreatePost(ctx, post))

	got, err := r.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, post, got)

	got.Content = "edited"
	got.Image = nil
	got.Edited = true
	require.NoError(t, r.UpdatePost(ctx, got))

	got, err = r.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	assert.Nil(t, got.Image)
	assert.True(t, got.Edited)

	require.NoError(t, r.DeletePost(ctx, "p1"))
	_, err = r.GetPost(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, r.DeletePost(ctx, "p1"), domain.ErrNotFound)
	assert.ErrorIs(t, r.UpdatePost(ctx, got), domain.ErrNotFound)
}

func TestRepository_ListPosts_Pagination(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedUser(t, r, "u1", "jane@example.com")

	base := time.Now().UTC()
	for i := 0; i < 23; i++ {
		require.NoError(t, r.CreatePost(ctx, &domain.Post{
			ID:      fmt.Sprintf("p%02d", i),
			Creator: "u1",
			Content: fmt.Sprintf("post %d", i),
			Date:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	total, err := r.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 23, total)

	first, err := r.ListPosts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, "p22", first[0].ID, "newest post comes first")

	last, err := r.ListPosts(ctx, 10, 20)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, "p00", last[2].ID)

	none, err := r.ListPosts(ctx, 10, 30)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_DeletingUserCascades(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedUser(t, r, "u1", "jane@example.com")

	require.NoError(t, r.CreatePost(ctx, &domain.Post{ID: "p1", Creator: "u1", Content: "x", Date: time.Now()}))
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, "u1")
	require.NoError(t, err)

	n, err := r.CountPosts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		dsn    string
	}{
		{":memory:", "sqlite", ":memory:?_pragma=foreign_keys(1)"},
		{"file:postboard.db", "sqlite", "file:postboard.db?_pragma=foreign_keys(1)"},
		{"sqlite://data/posts.db", "sqlite", "data/posts.db?_pragma=foreign_keys(1)"},
		{"file:postboard.db?_pragma=busy_timeout(5000)", "sqlite", "file:postboard.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
		{"posts.db?_pragma=foreign_keys(1)", "sqlite", "posts.db?_pragma=foreign_keys(1)"},
		{"postgres://u:p@localhost/db?sslmode=disable", "postgres", "postgres://u:p@localhost/db?sslmode=disable"},
		{"postgresql://localhost/db", "postgres", "postgresql://localhost/db"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d, dsn := parseURL(tt.url)
			assert.Equal(t, tt.driver, d.driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestNewRepository_ForeignKeysOnEveryConnection(t *testing.T) {
	r, err := NewRepository(filepath.Join(t.TempDir(), "posts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	// Without idle connections each query runs on a freshly opened one.
	r.db.SetMaxIdleConns(0)
	for i := 0; i < 3; i++ {
		var on int
		require.NoError(t, r.db.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
		assert.Equal(t, 1, on)
	}
}

func TestRebind(t *testing.T) {
	pg := &Repository{dialect: postgresDialect}
	assert.Equal(t, "SELECT * FROM posts WHERE id = $1 AND creator = $2", pg.rebind("SELECT * FROM posts WHERE id = ? AND creator = ?"))

	lite := &Repository{dialect: sqliteDialect}
	assert.Equal(t, "WHERE id = ?", lite.rebind("WHERE id = ?"))
}
