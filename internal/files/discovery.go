package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindByExtension lists regular files in the base directory whose name ends
// in ext (case-insensitive), sorted by name. Hidden files are skipped. A
// missing directory yields an empty list.
func (d *Discovery) FindByExtension(ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(d.basePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.basePath, err)
	}

	ext = strings.ToLower(ext)
	var found []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), ext) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		found = append(found, FileInfo{
			Path:    filepath.Join(d.basePath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Name < found[j].Name
	})

	return found, nil
}

