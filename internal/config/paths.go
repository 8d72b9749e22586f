package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all the application paths
// This is the single source of truth for ALL file paths in the application
type Paths struct {
	ExecutableDir string
	DataDir       string
	LogsDir       string
	ExportsDir    string

	// Issuing side
	KeysDir      string // one <KEY>.json per issued key
	RegistryFile string // aggregate keys.json rebuilt from KeysDir

	// Validating side
	RegistryCache string // last fetched registry
	LicenseFile   string // local activation token

	CredentialsFile string
}

// GetPaths returns the application paths relative to the executable location
// All paths are ALWAYS relative to the executable directory, never the current working directory
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %v", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %v", err)
	}

	return NewPaths(filepath.Dir(exe)), nil
}

// NewPaths lays out the application files under baseDir:
//
//	base/
//	  ├── keys/            (record files, issuing side)
//	  ├── keys.json        (aggregate registry, issuing side)
//	  ├── license.dat      (activation token, client side)
//	  ├── credentials.json (Google service account, optional)
//	  ├── data/
//	  │   └── keys.json    (registry cache, client side)
//	  ├── exports/
//	  └── logs/
func NewPaths(baseDir string) *Paths {
	dataDir := filepath.Join(baseDir, "data")
	return &Paths{
		ExecutableDir:   baseDir,
		DataDir:         dataDir,
		LogsDir:         filepath.Join(baseDir, "logs"),
		ExportsDir:      filepath.Join(baseDir, "exports"),
		KeysDir:         filepath.Join(baseDir, "keys"),
		RegistryFile:    filepath.Join(baseDir, "keys.json"),
		RegistryCache:   filepath.Join(dataDir, "keys.json"),
		LicenseFile:     filepath.Join(baseDir, "license.dat"),
		CredentialsFile: filepath.Join(baseDir, "credentials.json"),
	}
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.LogsDir,
		p.KeysDir,
		filepath.Dir(p.RegistryFile),
		filepath.Dir(p.RegistryCache),
		filepath.Dir(p.LicenseFile),
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// LogPathResolution logs all resolved paths for debugging
func (p *Paths) LogPathResolution() {
	slog.Debug("Path resolution",
		slog.String("executable_dir", p.ExecutableDir),
		slog.String("keys_dir", p.KeysDir),
		slog.String("registry_file", p.RegistryFile),
		slog.String("registry_cache", p.RegistryCache),
		slog.String("license_file", p.LicenseFile),
		slog.String("logs_dir", p.LogsDir),
	)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
