package routecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FileCache keeps one JSON file per key under a root directory.
// Entries never expire.
type FileCache struct {
	fs   afero.Fs
	root string
}

// NewFileCache creates the root directory if needed and returns a cache rooted there.
func NewFileCache(fs afero.Fs, root string) (*FileCache, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", root, err)
	}
	return &FileCache{fs: fs, root: root}, nil
}

// Path returns the file backing key.
func (c *FileCache) Path(key string) string {
	return filepath.Join(c.root, key+".json")
}

// Get reads the entry for key.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	body, err := afero.ReadFile(c.fs, c.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return body, true, nil
}

// Put writes the entry through a temporary file and a rename, so readers never
// observe a partial body. Concurrent writers of the same key: last one wins.
func (c *FileCache) Put(_ context.Context, key string, body []byte) error {
	tmp := filepath.Join(c.root, "."+key+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(c.fs, tmp, body, 0o644); err != nil {
		_ = c.fs.Remove(tmp)
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	if err := c.fs.Rename(tmp, c.Path(key)); err != nil {
		_ = c.fs.Remove(tmp)
		return fmt.Errorf("commit cache entry %s: %w", key, err)
	}
	return nil
}
