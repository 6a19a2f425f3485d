// Package store implements the domain repositories on top of database/sql.
// SQLite (modernc.org/sqlite) is the default; a postgres:// URL selects
// PostgreSQL through lib/pq.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect struct {
	driver   string
	blobType string
	numbered bool // $1 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{driver: "sqlite", blobType: "BLOB"}
	postgresDialect = dialect{driver: "postgres", blobType: "BYTEA", numbered: true}
)

// Repository implements domain.PostRepository and domain.UserRepository.
type Repository struct {
	db      *sql.DB
	dialect dialect
}

// NewRepository opens the database at databaseURL, verifies the connection
// and creates the schema if needed. Use ":memory:" for a throwaway SQLite
// database. The caller should call Close when done.
func NewRepository(databaseURL string) (*Repository, error) {
	d, dsn := parseURL(databaseURL)

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d.driver == "sqlite" {
		// A single connection keeps ":memory:" databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repository{db: db, dialect: d}
	if err := r.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func parseURL(databaseURL string) (dialect, string) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresDialect, databaseURL
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqliteDialect, sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite://"))
	default:
		return sqliteDialect, sqliteDSN(databaseURL)
	}
}

// sqliteDSN turns on foreign keys for every connection the pool opens, so
// deleting a user always cascades to their posts.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, foreignKeysPragma) {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + foreignKeysPragma
	}
	return dsn + "?" + foreignKeysPragma
}

const foreignKeysPragma = "_pragma=foreign_keys(1)"

func (r *Repository) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			creator TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			image_type TEXT,
			image_data %s,
			created_at BIGINT NOT NULL,
			edited SMALLINT NOT NULL DEFAULT 0
		)`, r.dialect.blobType),
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC, id DESC)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that number them.
func (r *Repository) rebind(query string) string {
	if !r.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	imageType, imageData := splitImage(post.Image)
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO posts (id, creator, content, image_type, image_data, created_at, edited)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		post.ID,
		post.Creator,
		post.Content,
		imageType,
		imageData,
		post.Date.UnixMilli(),
		boolToInt(post.Edited),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// UpdatePost overwrites the mutable fields of a post.
func (r *Repository) UpdatePost(ctx context.Context, post *domain.Post) error {
	imageType, imageData := splitImage(post.Image)
	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE posts SET content = ?, image_type = ?, image_data = ?, edited = ?
		WHERE id = ?`),
		post.Content,
		imageType,
		imageData,
		boolToInt(post.Edited),
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return expectRow(res)
}

// DeletePost removes a post by ID.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return expectRow(res)
}

// GetPost retrieves a single post.
func (r *Repository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, creator, content, image_type, image_data, created_at, edited
		FROM posts WHERE id = ?`), id)

	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return post, nil
}

// ListPosts returns up to limit posts, newest first, skipping offset.
func (r *Repository) ListPosts(ctx context.Context, limit, offset int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, creator, content, image_type, image_data, created_at, edited
		FROM posts
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts (limit=%d, offset=%d): %w", limit, offset, err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// CountPosts returns the total number of posts.
func (r *Repository) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// CreateUser inserts a user, mapping unique violations on email to
// domain.ErrEmailTaken.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO users (id, first_name, last_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE email = ?`, email)
}

func (r *Repository) getUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, first_name, last_name, email, password_hash, created_at
		FROM users `+where), arg,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*domain.Post, error) {
	var (
		p         domain.Post
		imageType sql.NullString
		imageData []byte
		createdAt int64
		edited    int
	)
	if err := s.Scan(&p.ID, &p.Creator, &p.Content, &imageType, &imageData, &createdAt, &edited); err != nil {
		return nil, err
	}
	if imageType.Valid && len(imageData) > 0 {
		p.Image = &domain.Image{MimeType: imageType.String, Binary: imageData}
	}
	p.Date = time.UnixMilli(createdAt).UTC()
	p.Edited = edited != 0
	return &p, nil
}

func splitImage(img *domain.Image) (sql.NullString, []byte) {
	if img == nil || len(img.Binary) == 0 {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: img.MimeType, Valid: true}, img.Binary
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SQLite has no boolean type.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
