package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// localBucket keeps objects as files under dir.
type localBucket struct {
	dir string
}

// NewLocalStorage returns an Archive on the local filesystem rooted at
// baseDir. Useful for development and testing.
func NewLocalStorage(baseDir string) *Archive {
	return &Archive{blobs: localBucket{dir: baseDir}}
}

func (b localBucket) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key))
}

func (b localBucket) write(_ context.Context, key, _ string, data []byte) error {
	p := b.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(p, data, 0o644)
}

func (b localBucket) read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
