package feed

import (
	"errors"
	"log/slog"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/imageurl"
	"github.com/blackmichael/postboard/internal/linkify"
	"github.com/blackmichael/postboard/internal/timeago"
)

// EnrichedPost is a post plus the fields computed for display.
type EnrichedPost struct {
	domain.Post

	// ImageURL is a data URL for the image, or empty when the post has no
	// usable image.
	ImageURL string

	// DateDiff is the relative age of the post as of the last fetch.
	DateDiff string

	// DisplayContent is Content with links rewritten as anchors.
	DisplayContent string
}

// Enricher computes the display fields of posts.
type Enricher struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewEnricher creates an Enricher. now defaults to time.Now.
func NewEnricher(now func() time.Time, logger *slog.Logger) *Enricher {
	if now == nil {
		now = time.Now
	}
	return &Enricher{now: now, logger: logger}
}

// Enrich returns the enriched form of every post, in order. A post whose
// image cannot be materialized is kept without an image.
func (e *Enricher) Enrich(posts []domain.Post) []EnrichedPost {
	now := e.now()
	out := make([]EnrichedPost, len(posts))
	for i, p := range posts {
		out[i] = e.enrich(p, now)
	}
	return out
}

// Reage returns a copy of records with DateDiff recomputed against the
// current time.
func (e *Enricher) Reage(records []EnrichedPost) []EnrichedPost {
	now := e.now()
	out := make([]EnrichedPost, len(records))
	for i, r := range records {
		r.DateDiff = timeago.Label(r.Date, now)
		out[i] = r
	}
	return out
}

func (e *Enricher) enrich(p domain.Post, now time.Time) EnrichedPost {
	ep := EnrichedPost{
		Post:           p,
		DateDiff:       timeago.Label(p.Date, now),
		DisplayContent: linkify.Rewrite(p.Content),
	}

	if p.Image == nil {
		return ep
	}
	url, err := imageurl.Materialize(p.Image.MimeType, p.Image.Binary)
	switch {
	case err == nil:
		ep.ImageURL = url
	case errors.Is(err, imageurl.ErrNoImage):
	default:
		e.logger.Debug("omitting post image", "post_id", p.ID, "error", err)
	}
	return ep
}
