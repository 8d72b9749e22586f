package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"axiscli/internal/infrastructure"
)

// ErrSessionTerminated is returned by Monitor.Run when a revalidation pass
// finds the license invalid.
var ErrSessionTerminated = errors.New("license session terminated")

// Revalidator is the part of Manager the monitor drives.
type Revalidator interface {
	IsCurrentlyValid(ctx context.Context) Result
}

// Monitor revalidates the local activation on a fixed interval while a
// protected session runs.
type Monitor struct {
	validator Revalidator
	interval  time.Duration
	onInvalid func(Result)
	logger    *slog.Logger

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMonitor creates a monitor. onInvalid, if set, is called once with the
// failing result before Run returns.
func NewMonitor(validator Revalidator, interval time.Duration, onInvalid func(Result)) *Monitor {
	return &Monitor{
		validator: validator,
		interval:  interval,
		onInvalid: onInvalid,
		logger:    infrastructure.WithComponent(infrastructure.GetLogger(), "license_monitor"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run blocks until ctx is done, Stop is called, or a pass finds the license
// invalid, in which case it returns ErrSessionTerminated. Stop signals are
// honoured between passes; a pass in flight runs to completion, bounded by
// the registry timeout, so the activation file is never left half updated.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("monitor already running")
	}
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "license monitor started", slog.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "license monitor stopped", slog.String("cause", "context"))
			return nil
		case <-m.stop:
			m.logger.InfoContext(ctx, "license monitor stopped", slog.String("cause", "stop"))
			return nil
		case <-ticker.C:
		}

		passCtx := infrastructure.ContextWithTraceID(context.WithoutCancel(ctx))
		result := m.validator.IsCurrentlyValid(passCtx)
		if result.Valid {
			continue
		}

		m.logger.WarnContext(passCtx, "license no longer valid, terminating session",
			slog.String("reason", result.Reason))
		if m.onInvalid != nil {
			m.onInvalid(result)
		}
		return fmt.Errorf("%w: %s", ErrSessionTerminated, result.Reason)
	}
}

// Stop signals the loop and waits for it to exit. It is safe to call more
// than once and before Run.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
}
