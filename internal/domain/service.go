package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blackmichael/postboard/internal/imageurl"
	"github.com/google/uuid"
)

// PostService is the core backend service for posts. It owns validation,
// ownership checks and change notification around the repository.
type PostService struct {
	repo     PostRepository
	notifier ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPostService creates a PostService. notifier may be nil.
func NewPostService(repo PostRepository, notifier ChangeNotifier, logger *slog.Logger) *PostService {
	return &PostService{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreatePost validates and stores a new post authored by creatorID.
func (s *PostService) CreatePost(ctx context.Context, creatorID, content string, image *Image) (*Post, error) {
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidPost)
	}
	image, err := validateImage(image)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" && image == nil {
		return nil, fmt.Errorf("%w: content or image is required", ErrInvalidPost)
	}

	post := &Post{
		ID:      uuid.NewString(),
		Creator: creatorID,
		Content: content,
		Image:   image,
		Date:    s.now(),
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info("post created", "post_id", post.ID, "creator", creatorID, "has_image", image != nil)
	s.notify(post.ID)
	return post, nil
}

// EditPost applies upd to the post if userID is its creator.
func (s *PostService) EditPost(ctx context.Context, userID, postID string, upd PostUpdate) (*Post, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	image, err := validateImage(upd.Image)
	if err != nil {
		return nil, err
	}
	switch {
	case image != nil:
		post.Image = image
	case upd.DeleteImage:
		post.Image = nil
	}

	if strings.TrimSpace(upd.Content) == "" && post.Image == nil {
		return nil, fmt.Errorf("%w: content or image is required", ErrInvalidPost)
	}
	post.Content = upd.Content
	post.Edited = true

	if err := s.repo.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	s.logger.Info("post edited", "post_id", postID, "creator", userID)
	s.notify(postID)
	return post, nil
}

// DeletePost removes the post if userID is its creator.
func (s *PostService) DeletePost(ctx context.Context, userID, postID string) error {
	if _, err := s.owned(ctx, userID, postID); err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	s.logger.Info("post deleted", "post_id", postID, "creator", userID)
	s.notify(postID)
	return nil
}

// GetPost returns a single post.
func (s *PostService) GetPost(ctx context.Context, postID string) (*Post, error) {
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return post, nil
}

// ListPosts returns page pageIndex (1-based) of size pageSize, newest
// first, together with the total post count.
func (s *PostService) ListPosts(ctx context.Context, pageSize, pageIndex int) (*PostPage, error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidPage, MaxPageSize)
	}
	if pageIndex < 1 || pageIndex > MaxPageIndex {
		return nil, fmt.Errorf("%w: page index must be between 1 and %d", ErrInvalidPage, MaxPageIndex)
	}

	s.logger.Debug("ListPosts called", "page_size", pageSize, "page", pageIndex)

	posts, err := s.repo.ListPosts(ctx, pageSize, pageSize*(pageIndex-1))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	total, err := s.repo.CountPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	return &PostPage{Posts: posts, Total: total}, nil
}

func (s *PostService) owned(ctx context.Context, userID, postID string) (*Post, error) {
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	if post.Creator != userID {
		s.logger.Warn("rejected change to foreign post", "post_id", postID, "user_id", userID)
		return nil, ErrForbidden
	}
	return post, nil
}

func (s *PostService) notify(postID string) {
	if s.notifier != nil {
		s.notifier.PostsChanged(postID)
	}
}

// validateImage normalizes the MIME type of img. A nil or empty image is
// returned as nil.
func validateImage(img *Image) (*Image, error) {
	if img == nil || len(img.Binary) == 0 {
		return nil, nil
	}
	mediaType, err := imageurl.Normalize(img.MimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPost, err)
	}
	return &Image{MimeType: mediaType, Binary: img.Binary}, nil
}
