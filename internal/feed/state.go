package feed

// Status is the lifecycle state of the feed.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// PageEvent is a pagination change as reported by a paginator control.
// PageIndex is 0-based.
type PageEvent struct {
	PageIndex int
	PageSize  int
}

// PageRequest is the page the feed is showing or loading. PageIndex is
// 1-based.
type PageRequest struct {
	PageSize  int
	PageIndex int
}

// ViewerIdentity is the display identity of the signed in user.
type ViewerIdentity struct {
	ID          string
	DisplayName string
}

// Viewer summarizes who is looking at the feed. Identity is nil unless
// Authenticated is set.
type Viewer struct {
	Authenticated bool
	Identity      *ViewerIdentity
}

// State is an immutable snapshot of the feed.
type State struct {
	Status Status

	// Page is the last successfully loaded page.
	Page Page

	// Request is the page most recently asked for. It differs from Page
	// while loading or after a failed fetch.
	Request PageRequest

	Viewer  Viewer
	Loading bool

	// Err is the most recent fetch or delete failure, cleared by the next
	// successful fetch.
	Err error

	// Seq is the sequence number of the newest fetch issued.
	Seq uint64

	expanded map[string]bool
}

// ImageExpanded reports whether the image of postID is toggled open.
func (s State) ImageExpanded(postID string) bool {
	return s.expanded[postID]
}
