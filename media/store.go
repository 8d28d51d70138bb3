// Package media stores uploaded room photos and videos.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"louyass/core"

	"github.com/google/uuid"
)

// DefaultMaxSize bounds an upload when no limit is configured
const DefaultMaxSize = 10 << 20

var (
	// ErrUnsupportedType is returned for content types other than image/* and video/*
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrTooLarge is returned when the upload exceeds the size limit
	ErrTooLarge = errors.New("media file too large")
	// ErrInvalidKey is returned for keys that escape the store root
	ErrInvalidKey = errors.New("invalid media key")
)

// Store persists media blobs and returns the URL they are served from
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Classify maps a content type to the media type stored on the record
func Classify(contentType string) (core.MediaType, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return core.MediaPhoto, nil
	case strings.HasPrefix(mediaType, "video/"):
		return core.MediaVideo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
}

// NewKey builds the storage key chambres/<room>/<uuid><ext>. The extension
// comes from the uploaded file name, falling back to the content type.
func NewKey(roomID int64, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 8 {
		ext = ""
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("chambres/%d/%s%s", roomID, uuid.NewString(), ext)
}

// LimitReader fails with ErrTooLarge once more than max bytes are read
func LimitReader(r io.Reader, max int64) io.Reader {
	return &limitedReader{r: r, remaining: max}
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
