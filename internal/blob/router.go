package blob

import (
	"context"
	"fmt"
	"sync"
)

// GCSFactory opens the GCS store on first use.
type GCSFactory func(ctx context.Context) (Store, error)

// Router sends gs:// paths to object storage and everything else to the
// local filesystem. The GCS client is only created when first needed.
type Router struct {
	local   Store
	factory GCSFactory
	gcs     Store
	gcsErr  error
	once    sync.Once
}

// NewRouter creates a router. A nil factory rejects gs:// paths.
func NewRouter(local Store, factory GCSFactory) *Router {
	return &Router{local: local, factory: factory}
}

// NewDefaultRouter routes local paths below root and gs:// paths through
// Application Default Credentials.
func NewDefaultRouter(root string) *Router {
	return NewRouter(NewLocalStore(root), func(ctx context.Context) (Store, error) {
		store, err := NewGCSStore(ctx)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}

func (r *Router) storeFor(ctx context.Context, path string) (Store, error) {
	if !IsGCS(path) {
		return r.local, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("GCS is not configured for %s", path)
	}
	r.once.Do(func() {
		r.gcs, r.gcsErr = r.factory(ctx)
	})
	return r.gcs, r.gcsErr
}

// Fetch implements Store.
func (r *Router) Fetch(ctx context.Context, path string, limit int64) ([]byte, error) {
	store, err := r.storeFor(ctx, path)
	if err != nil {
		return nil, err
	}
	return store.Fetch(ctx, path, limit)
}

// List implements Store.
func (r *Router) List(ctx context.Context, prefix string) ([]string, error) {
	store, err := r.storeFor(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, prefix)
}

// Close releases the GCS client if one was opened.
func (r *Router) Close() error {
	if r.gcs == nil {
		return nil
	}
	if closer, ok := r.gcs.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
