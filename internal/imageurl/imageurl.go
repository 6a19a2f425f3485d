// Package imageurl builds inline data URLs for post images so a view can
// display them without another round trip to the server.
package imageurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

var (
	// ErrNoImage is returned when either the MIME type or the payload is
	// missing. Callers treat it as "this post has no image".
	ErrNoImage = errors.New("no image")

	// ErrUnsupportedType is returned for MIME types that are not displayable
	// images.
	ErrUnsupportedType = errors.New("unsupported image type")

	// ErrMalformedPayload is returned when the payload does not look like an
	// image at all.
	ErrMalformedPayload = errors.New("malformed image payload")
)

// SupportedTypes lists the MIME types accepted for post images.
var SupportedTypes = []string{
	"image/gif",
	"image/jpeg",
	"image/png",
	"image/webp",
}

// Materialize returns a base64 data URL for payload tagged with mimeType.
func Materialize(mimeType string, payload []byte) (string, error) {
	if strings.TrimSpace(mimeType) == "" || len(payload) == 0 {
		return "", ErrNoImage
	}

	mediaType, err := Normalize(mimeType)
	if err != nil {
		return "", err
	}

	if sniffed := http.DetectContentType(payload); !strings.HasPrefix(sniffed, "image/") {
		return "", fmt.Errorf("%w: content looks like %s", ErrMalformedPayload, sniffed)
	}

	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(payload)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(payload))
	return b.String(), nil
}

// Normalize parses mimeType, drops any parameters and checks it against
// SupportedTypes.
func Normalize(mimeType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	for _, t := range SupportedTypes {
		if mediaType == t {
			return mediaType, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
}
