package domain

import (
	"math"
	"time"
)

// Post is a post record as stored by the backend and delivered to clients.
type Post struct {
	// ID is the opaque, stable identifier of the post.
	ID string

	// Creator is the ID of the authoring user.
	Creator string

	// Content is the raw text body. It may be empty only when Image is set.
	Content string

	// Image is the optional attached image.
	Image *Image

	// Date is when the post was created. It never changes after creation.
	Date time.Time

	// Edited is set once the post has been edited.
	Edited bool
}

// Image is an inline image payload attached to a post.
type Image struct {
	MimeType string
	Binary   []byte
}

// PostPage is one page of posts plus the total number of posts across all
// pages.
type PostPage struct {
	Posts []Post
	Total int
}

// PostUpdate describes an edit of an existing post.
type PostUpdate struct {
	Content string

	// Image replaces the current image when non-nil.
	Image *Image

	// DeleteImage removes the current image. Ignored when Image is set.
	DeleteImage bool
}

const (
	// DefaultPageSize is the page size used when none is requested.
	DefaultPageSize = 10

	// MaxPageSize caps the page size a client may request.
	MaxPageSize = 100

	// MaxPageIndex keeps the row offset of any valid page within an int.
	MaxPageIndex = math.MaxInt / MaxPageSize
)

// PageSizeOptions are the page sizes offered by pagination controls.
var PageSizeOptions = []int{5, 10, 25, 50}
