package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/infrastructure"
	"axiscli/pkg/contracts/domain"
)

// Fingerprinter supplies the current device fingerprint.
type Fingerprinter interface {
	Fingerprint() string
}

type passMode string

const (
	modeActivation   passMode = "activation"
	modeRevalidation passMode = "revalidation"
)

// Result is the outcome of one activation or revalidation pass.
type Result struct {
	Valid     bool
	Reason    string
	Err       error
	Key       string
	Expires   time.Time
	DaysLeft  int
	CheckedAt time.Time
	// FreshRegistry reports whether the pass ran against a registry fetched
	// during the pass rather than the cached copy.
	FreshRegistry bool
	// Bound reports that this pass performed the first-use binding.
	Bound bool
}

// Status maps the result onto the public license status.
func (r Result) Status() domain.LicenseStatus {
	switch {
	case r.Valid:
		return domain.LicenseStatusActive
	case errors.Is(r.Err, licenseErrors.ErrNoActivation):
		return domain.LicenseStatusNotActivated
	case errors.Is(r.Err, licenseErrors.ErrExpired):
		return domain.LicenseStatusExpired
	case errors.Is(r.Err, licenseErrors.ErrRevoked):
		return domain.LicenseStatusRevoked
	default:
		return domain.LicenseStatusInvalid
	}
}

// ToDomain converts the result for API responses.
func (r Result) ToDomain() domain.ValidationResult {
	out := domain.ValidationResult{
		Valid:     r.Valid,
		Status:    r.Status(),
		Reason:    r.Reason,
		ErrorCode: licenseErrors.Code(r.Err),
		DaysLeft:  r.DaysLeft,
		Key:       maskLicenseKey(r.Key),
		CheckedAt: r.CheckedAt,
	}
	if !r.Expires.IsZero() {
		expires := r.Expires
		out.Expires = &expires
	}
	return out
}

// Manager runs the license validation state machine. Activate and
// IsCurrentlyValid share one pass implementation and one exit path that
// reconciles the local activation file with the outcome.
type Manager struct {
	authority   Authority
	state       *StateStore
	fingerprint Fingerprinter
	now         func() time.Time
	metrics     *LicenseMetrics

	// mu serializes passes; the activation file has a single writer.
	mu sync.Mutex

	lastMu sync.RWMutex
	last   *Result

	subMu       sync.RWMutex
	subscribers []func(Result)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMetrics enables OpenTelemetry metrics.
func WithMetrics(metrics *LicenseMetrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a validator over authority and the activation file.
func NewManager(authority Authority, state *StateStore, fingerprint Fingerprinter, opts ...Option) *Manager {
	m := &Manager{
		authority:   authority,
		state:       state,
		fingerprint: fingerprint,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Activate validates a freshly presented token and, on success, makes it
// this device's activation.
func (m *Manager) Activate(ctx context.Context, token string) Result {
	ctx = infrastructure.EnsureTraceID(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.traceValidation(ctx, modeActivation, func(ctx context.Context) Result {
		return m.run(ctx, modeActivation, token)
	})
}

// IsCurrentlyValid revalidates the local activation against the registry.
func (m *Manager) IsCurrentlyValid(ctx context.Context) Result {
	ctx = infrastructure.EnsureTraceID(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.traceValidation(ctx, modeRevalidation, func(ctx context.Context) Result {
		return m.run(ctx, modeRevalidation, "")
	})
}

// Fingerprint returns the current device fingerprint.
func (m *Manager) Fingerprint() string {
	return m.fingerprint.Fingerprint()
}

// LastResult returns the outcome of the most recent pass.
func (m *Manager) LastResult() (Result, bool) {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

// Subscribe registers fn to receive every pass result. fn runs on the
// validating goroutine and must not call back into the Manager.
func (m *Manager) Subscribe(fn func(Result)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *Manager) run(ctx context.Context, mode passMode, token string) Result {
	fp := m.fingerprint.Fingerprint()
	now := m.now().UTC()

	result := m.evaluate(ctx, mode, token, fp, now)
	result.CheckedAt = now

	return m.commit(ctx, mode, result, fp)
}

// evaluate runs the checks without touching the activation file.
func (m *Manager) evaluate(ctx context.Context, mode passMode, token, fp string, now time.Time) Result {
	if mode == modeRevalidation {
		stored, err := m.state.LoadToken()
		if err != nil {
			return invalid(Result{}, err)
		}
		token = stored
	}

	claims, err := DecodeToken(token)
	if err != nil {
		return invalid(Result{}, err)
	}
	result := Result{Key: claims.Key}

	// the token names a device; activation refuses tokens minted for another one
	if mode == modeActivation && claims.HWID != "" && claims.HWID != fp {
		return invalid(result, licenseErrors.ErrDeviceMismatch)
	}

	fresh, err := m.refresh(ctx)
	if err != nil {
		m.logWarn(ctx, "registry_refresh", "registry unreachable, using cached registry",
			slog.String("error", err.Error()))
	}
	result.FreshRegistry = fresh

	rec, err := m.authority.Lookup(ctx, claims.Key)
	if err != nil {
		return invalid(result, err)
	}
	result.Expires = rec.Expires

	if rec.Revoked {
		return invalid(result, licenseErrors.ErrRevoked)
	}
	if rec.Expired(now) {
		return invalid(result, licenseErrors.ErrExpired)
	}

	if !rec.Bound() {
		if err := m.bind(ctx, claims.Key, fp); err != nil {
			return invalid(result, err)
		}
		result.Bound = true
	} else if rec.BoundTo() != fp {
		return invalid(result, licenseErrors.ErrDeviceMismatch)
	}

	result.Valid = true
	result.DaysLeft = daysLeft(rec.Expires, now)
	result.Reason = fmt.Sprintf("License valid, %d days left", result.DaysLeft)
	return result
}

// commit is the single exit of a pass: a valid outcome rewrites the
// activation file, anything else deletes it.
func (m *Manager) commit(ctx context.Context, mode passMode, result Result, fp string) Result {
	if result.Valid {
		err := m.state.Save(ActivationState{Key: result.Key, Expires: result.Expires, HWID: fp})
		if err != nil {
			result = invalid(result, err)
		}
	}

	if !result.Valid {
		if err := m.state.Delete(); err != nil {
			m.logError(ctx, "activation_file", "failed to remove activation file",
				slog.String("error", err.Error()))
		}
	}

	m.logResult(ctx, mode, result)

	m.lastMu.Lock()
	stored := result
	m.last = &stored
	m.lastMu.Unlock()

	m.subMu.RLock()
	subscribers := append([]func(Result){}, m.subscribers...)
	m.subMu.RUnlock()
	for _, fn := range subscribers {
		fn(result)
	}

	return result
}

func invalid(result Result, err error) Result {
	result.Valid = false
	result.Err = err
	result.Reason = reasonFor(err)
	result.DaysLeft = 0
	return result
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, licenseErrors.ErrInvalidFormat):
		return "Invalid license token format"
	case errors.Is(err, licenseErrors.ErrChecksumMismatch):
		return "License token failed its integrity check"
	case errors.Is(err, licenseErrors.ErrKeyNotFound):
		return "License key not found in registry"
	case errors.Is(err, licenseErrors.ErrRevoked):
		return "License has been revoked"
	case errors.Is(err, licenseErrors.ErrExpired):
		return "License has expired"
	case errors.Is(err, licenseErrors.ErrDeviceMismatch):
		return "License is bound to a different device"
	case errors.Is(err, licenseErrors.ErrNoActivation):
		return "No license activated on this device"
	case errors.Is(err, licenseErrors.ErrStorageFailure):
		return "License data could not be read or written"
	case errors.Is(err, licenseErrors.ErrChannelUnavailable):
		return "License registry unavailable"
	default:
		return "License validation failed"
	}
}

// daysLeft counts whole days until expires.
func daysLeft(expires, now time.Time) int {
	if !now.Before(expires) {
		return 0
	}
	return int(expires.Sub(now) / (24 * time.Hour))
}
