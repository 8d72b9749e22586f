// Package keystore persists issued key records on the issuing side: one JSON
// file per key under keys/ and the aggregate keys.json document derived from
// them.
package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/files"
	"axiscli/internal/infrastructure"
	"axiscli/internal/registry"
	"axiscli/pkg/contracts/domain"
)

const (
	// RecordsDirName is the directory holding one file per key.
	RecordsDirName = "keys"
	// AggregateFileName is the rebuilt registry document.
	AggregateFileName = "keys.json"

	recordExt = ".json"
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9-]{1,64}$`)

// ValidateKey rejects key names that could not be used as a record file name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", licenseErrors.ErrInvalidKey, key)
	}
	return nil
}

// Store reads and writes key records under a root directory.
type Store struct {
	root       string
	recordsDir string
	aggregate  string
	discovery  *files.Discovery
	logger     *slog.Logger

	// mu serializes record mutations; rebuildMu serializes aggregate writes.
	mu        sync.Mutex
	rebuildMu sync.Mutex
}

// New creates a store rooted at root. Directories are created on first write.
func New(root string) *Store {
	return Open(filepath.Join(root, RecordsDirName), filepath.Join(root, AggregateFileName))
}

// Open creates a store with record files in recordsDir and the aggregate
// registry at aggregatePath.
func Open(recordsDir, aggregatePath string) *Store {
	return &Store{
		root:       filepath.Dir(recordsDir),
		recordsDir: recordsDir,
		aggregate:  aggregatePath,
		discovery:  files.NewDiscovery(recordsDir),
		logger:     infrastructure.WithComponent(infrastructure.GetLogger(), "keystore"),
	}
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// RecordsDir returns the directory holding record files.
func (s *Store) RecordsDir() string { return s.recordsDir }

// AggregatePath returns the path of keys.json.
func (s *Store) AggregatePath() string { return s.aggregate }

func (s *Store) recordPath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.recordsDir, key+recordExt), nil
}

// Create writes a new record. It fails with ErrAlreadyExists if the key has a
// record.
func (s *Store) Create(ctx context.Context, rec domain.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.recordPath(rec.Key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if files.FileExists(path) {
		return fmt.Errorf("%w: %s", licenseErrors.ErrAlreadyExists, rec.Key)
	}
	if err := writeRecord(path, rec); err != nil {
		return err
	}

	infrastructure.LoggerWithContext(ctx).DebugContext(ctx, "key record created",
		slog.String("component", "keystore"),
		slog.String("key", rec.Key),
	)
	return nil
}

// Load reads one record. Absent keys yield ErrNotFound.
func (s *Store) Load(ctx context.Context, key string) (domain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.KeyRecord{}, err
	}
	path, err := s.recordPath(key)
	if err != nil {
		return domain.KeyRecord{}, err
	}
	return readRecord(path, key)
}

// Update replaces an existing record. Absent keys yield ErrNotFound.
func (s *Store) Update(ctx context.Context, rec domain.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.recordPath(rec.Key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !files.FileExists(path) {
		return fmt.Errorf("%w: %s", licenseErrors.ErrNotFound, rec.Key)
	}
	return writeRecord(path, rec)
}

// Delete removes a record. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.recordPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := files.Remove(path); err != nil {
		return fmt.Errorf("%w: delete record %s: %v", licenseErrors.ErrStorageFailure, key, err)
	}
	return nil
}

// LoadAll reads every record file. Unreadable or malformed files are logged
// and skipped so one bad file never blocks a rebuild.
func (s *Store) LoadAll(ctx context.Context) (domain.Registry, error) {
	found, err := s.discovery.FindByExtension(recordExt)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", licenseErrors.ErrStorageFailure, err)
	}

	reg := make(domain.Registry, len(found))
	for _, f := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
		if err := ValidateKey(key); err != nil {
			s.logger.WarnContext(ctx, "skipping record file with invalid name",
				slog.String("file", f.Name))
			continue
		}

		rec, err := readRecord(f.Path, key)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable record file",
				slog.String("file", f.Name),
				slog.String("error", err.Error()))
			continue
		}
		reg[key] = rec
	}
	return reg, nil
}

// RebuildAggregate regenerates keys.json from the record files and returns
// the written document. Rebuilding an unchanged store produces identical
// bytes.
func (s *Store) RebuildAggregate(ctx context.Context) ([]byte, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	reg, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	document, err := registry.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", licenseErrors.ErrStorageFailure, err)
	}
	if err := files.WriteAtomic(s.aggregate, document, 0644); err != nil {
		return nil, fmt.Errorf("%w: write aggregate: %v", licenseErrors.ErrStorageFailure, err)
	}

	s.logger.InfoContext(ctx, "aggregate registry rebuilt",
		slog.Int("keys", len(reg)),
		slog.String("path", s.aggregate))
	return document, nil
}

// Aggregate returns the current keys.json content. A store that was never
// rebuilt yields ErrNotFound.
func (s *Store) Aggregate() ([]byte, error) {
	data, ok, err := files.ReadIfExists(s.aggregate)
	if err != nil {
		return nil, fmt.Errorf("%w: read aggregate: %v", licenseErrors.ErrStorageFailure, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", licenseErrors.ErrNotFound, AggregateFileName)
	}
	return data, nil
}

func readRecord(path, key string) (domain.KeyRecord, error) {
	data, ok, err := files.ReadIfExists(path)
	if err != nil {
		return domain.KeyRecord{}, fmt.Errorf("%w: read record %s: %v", licenseErrors.ErrStorageFailure, key, err)
	}
	if !ok {
		return domain.KeyRecord{}, fmt.Errorf("%w: %s", licenseErrors.ErrNotFound, key)
	}

	var rec domain.KeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.KeyRecord{}, fmt.Errorf("%w: malformed record %s: %v", licenseErrors.ErrStorageFailure, key, err)
	}
	// the file name is authoritative
	rec.Key = key
	return rec, nil
}

func writeRecord(path string, rec domain.KeyRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal record %s: %v", licenseErrors.ErrStorageFailure, rec.Key, err)
	}
	data = append(data, '\n')
	if err := files.WriteAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write record %s: %v", licenseErrors.ErrStorageFailure, rec.Key, err)
	}
	return nil
}
