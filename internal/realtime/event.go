package realtime

import (
	"encoding/json"
	"fmt"
)

// KindPostsChanged is sent whenever a post is created, edited or deleted.
const KindPostsChanged = "posts_changed"

// Event is the JSON message pushed to websocket clients.
type Event struct {
	Kind   string `json:"kind"`
	PostID string `json:"postId,omitempty"`

	// TimeMS is the server time of the change in unix milliseconds.
	TimeMS int64 `json:"time"`
}

func parseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Kind == "" {
		return nil, fmt.Errorf("event without kind")
	}
	return &ev, nil
}
