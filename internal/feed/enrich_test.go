package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnricher_Enrich(t *testing.T) {
	e := NewEnricher(func() time.Time { return fixedNow }, discardLogger())

	tests := []struct {
		name        string
		post        domain.Post
		wantAge     string
		wantContent string
		wantImage   bool
	}{
		{
			name:        "plain text",
			post:        domain.Post{ID: "a", Content: "hello there", Date: fixedNow.Add(-90 * 24 * time.Hour)},
			wantAge:     "3 months",
			wantContent: "hello there",
		},
		{
			name:        "link and image",
			post:        domain.Post{ID: "b", Content: "see www.example.com", Image: &domain.Image{MimeType: "image/png", Binary: pngBytes}, Date: fixedNow.Add(-time.Minute)},
			wantAge:     "1 minute",
			wantContent: `see <a href="www.example.com" target="_blank" rel="noopener noreferrer">www.example.com</a>`,
			wantImage:   true,
		},
		{
			name:        "unsupported image is dropped",
			post:        domain.Post{ID: "c", Content: "doc", Image: &domain.Image{MimeType: "application/pdf", Binary: []byte("%PDF-1.4")}, Date: fixedNow},
			wantAge:     "0 second",
			wantContent: "doc",
		},
		{
			name:        "empty payload is dropped",
			post:        domain.Post{ID: "d", Content: "x", Image: &domain.Image{MimeType: "image/png"}, Date: fixedNow.Add(-2 * time.Hour)},
			wantAge:     "2 hours",
			wantContent: "x",
		},
		{
			name:        "markup is escaped",
			post:        domain.Post{ID: "e", Content: "<script>alert(1)</script>", Date: fixedNow.Add(-8 * 24 * time.Hour)},
			wantAge:     "1 week",
			wantContent: "&lt;script&gt;alert(1)&lt;/script&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Enrich([]domain.Post{tt.post})
			require.Len(t, got, 1)
			assert.Equal(t, tt.post, got[0].Post)
			assert.Equal(t, tt.wantAge, got[0].DateDiff)
			assert.Equal(t, tt.wantContent, got[0].DisplayContent)
			if tt.wantImage {
				assert.True(t, strings.HasPrefix(got[0].ImageURL, "data:image/png;base64,"))
			} else {
				assert.Empty(t, got[0].ImageURL)
			}
		})
	}
}

func TestEnricher_Reage(t *testing.T) {
	now := fixedNow
	e := NewEnricher(func() time.Time { return now }, discardLogger())

	records := e.Enrich([]domain.Post{{ID: "a", Content: "x", Date: fixedNow.Add(-30 * time.Second)}})
	require.Equal(t, "30 seconds", records[0].DateDiff)

	now = fixedNow.Add(2 * time.Hour)
	aged := e.Reage(records)
	assert.Equal(t, "2 hours", aged[0].DateDiff)
	assert.Equal(t, "30 seconds", records[0].DateDiff, "input is not modified")
}

func TestPageCache_Toggle(t *testing.T) {
	var c pageCache
	c.replace(Page{Records: []EnrichedPost{{Post: domain.Post{ID: "a"}}, {Post: domain.Post{ID: "b"}}}})

	assert.False(t, c.toggle("missing"))
	assert.True(t, c.toggle("a"))
	before := c.expanded
	assert.True(t, c.toggle("b"))
	assert.True(t, c.expanded["a"])
	assert.True(t, c.expanded["b"])
	assert.False(t, before["b"], "toggle copies the map")

	c.replace(Page{Records: c.page.Records})
	assert.Empty(t, c.expanded)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "unknown", Status(42).String())
}
