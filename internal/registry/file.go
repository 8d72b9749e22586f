package registry

import (
	"context"
	"fmt"

	"axiscli/internal/files"
)

// FileChannel publishes to and fetches from a path on a shared or synced
// file system.
type FileChannel struct {
	path string
}

// NewFileChannel creates a channel backed by the file at path.
func NewFileChannel(path string) *FileChannel {
	return &FileChannel{path: path}
}

// Fetch reads the published document.
func (c *FileChannel) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("fetch", err)
	}
	data, ok, err := files.ReadIfExists(c.path)
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	if !ok {
		return nil, unavailable("fetch", fmt.Errorf("%s does not exist", c.path))
	}
	return data, nil
}

// Publish replaces the published document atomically.
func (c *FileChannel) Publish(ctx context.Context, document []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("publish", err)
	}
	if err := files.WriteAtomic(c.path, document, 0644); err != nil {
		return unavailable("publish", err)
	}
	return nil
}
