package feed

import (
	"errors"
	"fmt"

	"github.com/blackmichael/postboard/internal/domain"
)

var (
	// ErrClosed is returned by commands issued after the assembler stopped.
	ErrClosed = errors.New("feed assembler closed")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("feed assembler already running")

	// ErrInvalidPage is returned by ChangePage for out of range parameters.
	ErrInvalidPage = domain.ErrInvalidPage
)

// FetchError records a failed page fetch. The previously loaded page stays
// in place.
type FetchError struct {
	PageSize  int
	PageIndex int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d (size %d): %v", e.PageIndex, e.PageSize, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DeleteError records a failed post deletion.
type DeleteError struct {
	PostID string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete post %s: %v", e.PostID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
