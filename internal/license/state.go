package license

import (
	"fmt"
	"strings"
	"time"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/files"
)

// ActivationState is the cached copy of the last proven-valid activation.
type ActivationState struct {
	Key     string
	Expires time.Time
	HWID    string
}

// StateStore persists the local activation file. The file holds exactly one
// token. Callers serialize access; the Manager holds its own mutex around
// every pass.
type StateStore struct {
	path string
}

// NewStateStore creates a store for the activation file at path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the activation file location.
func (s *StateStore) Path() string {
	return s.path
}

// LoadToken returns the raw token, or ErrNoActivation if there is none.
func (s *StateStore) LoadToken() (string, error) {
	data, ok, err := files.ReadIfExists(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: read activation file: %v", licenseErrors.ErrStorageFailure, err)
	}
	if !ok {
		return "", licenseErrors.ErrNoActivation
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", licenseErrors.ErrNoActivation
	}
	return token, nil
}

// Load decodes the activation file.
func (s *StateStore) Load() (ActivationState, error) {
	token, err := s.LoadToken()
	if err != nil {
		return ActivationState{}, err
	}

	claims, err := DecodeToken(token)
	if err != nil {
		return ActivationState{}, err
	}
	return ActivationState(claims), nil
}

// Save writes state as a token, replacing the previous file atomically.
func (s *StateStore) Save(state ActivationState) error {
	token, err := EncodeToken(state.Key, state.Expires, state.HWID)
	if err != nil {
		return err
	}

	if err := files.WriteAtomic(s.path, []byte(token), 0600); err != nil {
		return fmt.Errorf("%w: write activation file: %v", licenseErrors.ErrStorageFailure, err)
	}
	return nil
}

// Delete removes the activation file. A missing file is not an error.
func (s *StateStore) Delete() error {
	if err := files.Remove(s.path); err != nil {
		return fmt.Errorf("%w: delete activation file: %v", licenseErrors.ErrStorageFailure, err)
	}
	return nil
}

// Exists reports whether an activation file is present.
func (s *StateStore) Exists() bool {
	return files.FileExists(s.path)
}
