// Package keys implements the issuing side's key lifecycle: minting
// identifiers, issuing, revoking, resetting device bindings and deleting
// records. Every mutation is followed by a rebuild of the aggregate registry.
package keys

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/infrastructure"
	"axiscli/internal/keystore"
	"axiscli/internal/license"
	"axiscli/pkg/contracts/domain"
)

const (
	identifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	identifierGroups   = 4
	identifierGroupLen = 4
)

// NormalizeKey trims and upper-cases a key as typed by an operator. Every
// Manager operation applies it to its key argument.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Manager runs lifecycle operations against a record store.
type Manager struct {
	store  *keystore.Store
	now    func() time.Time
	random io.Reader
	logger *slog.Logger

	// mu makes each read-modify-write on a record atomic.
	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithRandom overrides the identifier entropy source.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.random = r
	}
}

// NewManager creates a lifecycle manager over store.
func NewManager(store *keystore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		random: rand.Reader,
		logger: infrastructure.WithComponent(infrastructure.GetLogger(), "key_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying record store.
func (m *Manager) Store() *keystore.Store {
	return m.store
}

// GenerateIdentifier returns a random XXXX-XXXX-XXXX-XXXX identifier over
// A-Z and 0-9, about 82 bits of entropy.
func (m *Manager) GenerateIdentifier() (string, error) {
	alphabetLen := big.NewInt(int64(len(identifierAlphabet)))

	var b strings.Builder
	b.Grow(identifierGroups*identifierGroupLen + identifierGroups - 1)
	for g := 0; g < identifierGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < identifierGroupLen; i++ {
			n, err := rand.Int(m.random, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("failed to generate identifier: %w", err)
			}
			b.WriteByte(identifierAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// Issue creates a record valid for durationDays. An empty key is replaced by
// a generated identifier; a non-nil hwid pre-binds the key to that device.
func (m *Manager) Issue(ctx context.Context, key string, durationDays int, hwid *string) (domain.KeyRecord, error) {
	if durationDays <= 0 {
		return domain.KeyRecord{}, fmt.Errorf("%w: got %d", licenseErrors.ErrInvalidDuration, durationDays)
	}

	if key == "" {
		generated, err := m.GenerateIdentifier()
		if err != nil {
			return domain.KeyRecord{}, err
		}
		key = generated
	}
	key = NormalizeKey(key)

	now := m.now().UTC()
	rec := domain.KeyRecord{
		Key:     key,
		Expires: now.AddDate(0, 0, durationDays),
		Created: now,
	}
	if hwid != nil && *hwid != "" {
		bound := *hwid
		rec.HWID = &bound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Create(ctx, rec); err != nil {
		return domain.KeyRecord{}, err
	}
	m.audit(ctx, "issue", rec, slog.Int("days", durationDays), slog.Bool("prebound", rec.Bound()))

	return rec, m.rebuild(ctx)
}

// Revoke marks a key revoked. Revoking an already revoked key changes
// nothing and reports alreadyRevoked.
func (m *Manager) Revoke(ctx context.Context, key string) (alreadyRevoked bool, err error) {
	key = NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx, key)
	if err != nil {
		return false, err
	}
	if rec.Revoked {
		return true, nil
	}

	now := m.now().UTC()
	rec.Revoked = true
	rec.RevokedAt = &now
	if err := m.store.Update(ctx, rec); err != nil {
		return false, err
	}
	m.audit(ctx, "revoke", rec)

	return false, m.rebuild(ctx)
}

// ResetHWID unbinds a key so the next validating device binds it. Revoked
// keys are refused.
func (m *Manager) ResetHWID(ctx context.Context, key string) error {
	key = NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx, key)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return fmt.Errorf("%w: %s", licenseErrors.ErrRevokedKey, key)
	}

	now := m.now().UTC()
	rec.HWID = nil
	rec.HWIDResetAt = &now
	if err := m.store.Update(ctx, rec); err != nil {
		return err
	}
	m.audit(ctx, "reset_hwid", rec)

	return m.rebuild(ctx)
}

// Delete removes a key. Deleting an absent key is not an error.
func (m *Manager) Delete(ctx context.Context, key string) error {
	key = NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(ctx, key); err != nil {
		return err
	}
	m.audit(ctx, "delete", domain.KeyRecord{Key: key})

	return m.rebuild(ctx)
}

// Bind records hwid as the device of an unbound key on behalf of a
// validating device. Binding to the already bound device is a no-op.
func (m *Manager) Bind(ctx context.Context, key, hwid string) error {
	key = NormalizeKey(key)

	if hwid == "" {
		return fmt.Errorf("%w: empty hwid", licenseErrors.ErrInvalidFormat)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx, key)
	if err != nil {
		return err
	}
	switch {
	case rec.Revoked:
		return fmt.Errorf("%w: %s", licenseErrors.ErrRevoked, key)
	case rec.Expired(m.now()):
		return fmt.Errorf("%w: %s", licenseErrors.ErrExpired, key)
	case rec.Bound() && rec.BoundTo() == hwid:
		return nil
	case rec.Bound():
		return fmt.Errorf("%w: %s", licenseErrors.ErrDeviceMismatch, key)
	}

	bound := hwid
	rec.HWID = &bound
	if err := m.store.Update(ctx, rec); err != nil {
		return err
	}
	m.audit(ctx, "bind", rec)

	return m.rebuild(ctx)
}

// Extend pushes a key's expiry out by days, counted from the later of the
// current expiry and now. Revoked keys are refused.
func (m *Manager) Extend(ctx context.Context, key string, days int) (domain.KeyRecord, error) {
	key = NormalizeKey(key)

	if days <= 0 {
		return domain.KeyRecord{}, fmt.Errorf("%w: got %d", licenseErrors.ErrInvalidDuration, days)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx, key)
	if err != nil {
		return domain.KeyRecord{}, err
	}
	if rec.Revoked {
		return domain.KeyRecord{}, fmt.Errorf("%w: %s", licenseErrors.ErrRevokedKey, key)
	}

	base := rec.Expires
	if now := m.now().UTC(); now.After(base) {
		base = now
	}
	rec.Expires = base.AddDate(0, 0, days)
	if err := m.store.Update(ctx, rec); err != nil {
		return domain.KeyRecord{}, err
	}
	m.audit(ctx, "extend", rec, slog.Int("days", days))

	return rec, m.rebuild(ctx)
}

// Get returns one record.
func (m *Manager) Get(ctx context.Context, key string) (domain.KeyRecord, error) {
	return m.store.Load(ctx, NormalizeKey(key))
}

// List returns every readable record, oldest first.
func (m *Manager) List(ctx context.Context) ([]domain.KeyRecord, error) {
	reg, err := m.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.KeyRecord, 0, len(reg))
	for _, rec := range reg {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Token returns the activation token for a stored key, carrying the bound
// device if there is one.
func (m *Manager) Token(ctx context.Context, key string) (string, error) {
	key = NormalizeKey(key)

	rec, err := m.store.Load(ctx, key)
	if err != nil {
		return "", err
	}
	return license.EncodeToken(rec.Key, rec.Expires, rec.BoundTo())
}

// Rebuild regenerates the aggregate registry and returns it.
func (m *Manager) Rebuild(ctx context.Context) ([]byte, error) {
	return m.store.RebuildAggregate(ctx)
}

// Aggregate returns the current aggregate registry, building it on first use.
func (m *Manager) Aggregate(ctx context.Context) ([]byte, error) {
	doc, err := m.store.Aggregate()
	if errors.Is(err, licenseErrors.ErrNotFound) {
		return m.store.RebuildAggregate(ctx)
	}
	return doc, err
}

func (m *Manager) rebuild(ctx context.Context) error {
	_, err := m.store.RebuildAggregate(ctx)
	return err
}

func (m *Manager) audit(ctx context.Context, action string, rec domain.KeyRecord, attrs ...any) {
	args := append([]any{
		slog.String("action", action),
		slog.String("key", rec.Key),
	}, attrs...)
	m.logger.InfoContext(ctx, "key lifecycle change", args...)
}
