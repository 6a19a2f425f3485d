package domain

import "context"

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	// CreatePost inserts a new post. The post ID must already be set.
	CreatePost(ctx context.Context, post *Post) error

	// UpdatePost overwrites content, image and edited flag of an existing
	// post. Returns ErrNotFound if no post has the given ID.
	UpdatePost(ctx context.Context, post *Post) error

	// DeletePost removes a post by ID. Returns ErrNotFound if it does not
	// exist.
	DeletePost(ctx context.Context, id string) error

	// GetPost retrieves a single post. Returns ErrNotFound if missing.
	GetPost(ctx context.Context, id string) (*Post, error)

	// ListPosts returns up to limit posts, newest first, skipping offset.
	ListPosts(ctx context.Context, limit, offset int) ([]Post, error)

	// CountPosts returns the total number of posts.
	CountPosts(ctx context.Context) (int, error)
}

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	// CreateUser inserts a user. Returns ErrEmailTaken if the email is
	// already registered.
	CreateUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by ID. Returns ErrNotFound if missing.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by normalized email. Returns
	// ErrNotFound if missing.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare returns nil when password matches hash.
	Compare(hash, password string) error
}

// ChangeNotifier is told whenever the set of posts changes so that
// connected viewers can refresh.
type ChangeNotifier interface {
	PostsChanged(postID string)
}
