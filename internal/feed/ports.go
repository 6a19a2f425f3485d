package feed

import (
	"context"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/stream"
)

// PostSource fetches pages of posts and deletes posts.
type PostSource interface {
	// FetchPosts returns page pageIndex (1-based) of size pageSize together
	// with the total number of posts.
	FetchPosts(ctx context.Context, pageSize, pageIndex int) (*domain.PostPage, error)

	// DeletePost deletes a post and returns a message to show the user.
	DeletePost(ctx context.Context, postID string) (string, error)
}

// AuthSource reports who is viewing the feed.
type AuthSource interface {
	Authenticated() bool
	Identity() domain.Identity

	// SubscribeAuthStatus emits on every login, logout or session expiry.
	SubscribeAuthStatus() *stream.Subscription[bool]

	// SubscribeIdentity emits profile updates. Events may be partial.
	SubscribeIdentity() *stream.Subscription[domain.Identity]
}

// RefreshSource emits a signal whenever the feed should re-initialize,
// for example after a token refresh or when another viewer changed posts.
type RefreshSource interface {
	SubscribeRefresh() *stream.Subscription[struct{}]
}

// Notifier shows a one-off message to the user. Notify must not block.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }
