// Package blob reads uploaded statements from object storage or the local
// filesystem.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
)

// GCSScheme prefixes Google Cloud Storage URIs.
const GCSScheme = "gs://"

// Store fetches statement payloads by path.
type Store interface {
	// Fetch reads the object at path. Objects larger than limit bytes return
	// a *common.SizeLimitError; a limit of zero or less means no limit.
	Fetch(ctx context.Context, path string, limit int64) ([]byte, error)
	// List returns the paths of the objects under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// IsGCS reports whether path is a gs:// URI.
func IsGCS(path string) bool {
	return strings.HasPrefix(path, GCSScheme)
}

// ParseGCSURI splits gs://bucket/object into its bucket and object name.
// The object may be empty when allowEmptyObject is set, which is how
// prefixes are listed.
func ParseGCSURI(uri string, allowEmptyObject bool) (bucket, object string, err error) {
	if !IsGCS(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, GCSScheme)
	bucket, object, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if object == "" && !allowEmptyObject {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return bucket, object, nil
}

// readLimited reads r, failing once more than limit bytes have been seen.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &common.SizeLimitError{Size: int64(len(data)), Limit: limit}
	}
	return data, nil
}
