package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
)

// LocalStore reads files below a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root. An empty root means the
// current directory, and absolute paths are then accepted as-is.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root returns the configured root directory.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) resolve(path string) (string, error) {
	if s.root == "" {
		return filepath.Clean(path), nil
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve blob root: %w", err)
	}

	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(root, path)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside blob root %q", path, s.root)
	}
	return full, nil
}

// Fetch implements Store.
func (s *LocalStore) Fetch(ctx context.Context, path string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if limit > 0 {
		info, err := os.Stat(full)
		if err != nil {
			return nil, localError(path, err)
		}
		if info.Size() > limit {
			return nil, &common.SizeLimitError{Size: info.Size(), Limit: limit}
		}
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, localError(path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := readLimited(f, limit)
	if err != nil {
		var sizeErr *common.SizeLimitError
		if errors.As(err, &sizeErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// List implements Store. prefix names a directory; only regular files
// directly inside it are returned.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, localError(prefix, err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(prefix, entry.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

func localError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file %s: %w", path, common.ErrNotFound)
	}
	return fmt.Errorf("failed to open %s: %w", path, err)
}
