package blob

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/storage"
	"github.com/Veraticus/spice-ingest/internal/common"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore reads objects from Google Cloud Storage. Credentials come from
// Application Default Credentials unless options say otherwise.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCS-backed store.
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Fetch implements Store.
func (s *GCSStore) Fetch(ctx context.Context, uri string, limit int64) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri, false)
	if err != nil {
		return nil, err
	}

	length := int64(-1)
	if limit > 0 {
		length = limit + 1
	}

	r, err := s.client.Bucket(bucket).Object(object).NewRangeReader(ctx, 0, length)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("object %s: %w", uri, common.ErrNotFound)
		}
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer func() { _ = r.Close() }()

	if limit > 0 && r.Attrs.Size > limit {
		return nil, &common.SizeLimitError{Size: r.Attrs.Size, Limit: limit}
	}

	data, err := readLimited(r, limit)
	if err != nil {
		var sizeErr *common.SizeLimitError
		if errors.As(err, &sizeErr) {
			return nil, err
		}
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

// List implements Store for gs://bucket/prefix URIs.
func (s *GCSStore) List(ctx context.Context, uri string) ([]string, error) {
	bucket, prefix, err := ParseGCSURI(uri, true)
	if err != nil {
		return nil, err
	}

	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var uris []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS objects: %w", err)
		}
		if attrs.Name == "" || attrs.Name[len(attrs.Name)-1] == '/' {
			continue
		}
		uris = append(uris, GCSScheme+bucket+"/"+attrs.Name)
	}
	slices.Sort(uris)
	return uris, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
