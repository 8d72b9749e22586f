package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"axiscli/internal/config"
	"axiscli/internal/infrastructure"
	"axiscli/internal/registry"
)

// RegistrySource produces the aggregate registry document.
type RegistrySource interface {
	Rebuild(ctx context.Context) ([]byte, error)
}

// Publisher pushes the aggregate registry to a replication channel.
type Publisher struct {
	source  RegistrySource
	target  registry.Publisher
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	last []byte
}

// NewPublisher creates a publisher. Each channel call is bounded by timeout.
func NewPublisher(source RegistrySource, target registry.Publisher, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 || timeout > config.MaxRegistryTimeout {
		timeout = config.MaxRegistryTimeout
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Publisher{
		source:  source,
		target:  target,
		timeout: timeout,
		logger:  infrastructure.WithComponent(logger, "publisher"),
	}
}

// Publish rebuilds the aggregate and publishes it. Unless force is set, a
// document identical to the last one this publisher pushed is skipped;
// published reports whether the channel was called.
func (p *Publisher) Publish(ctx context.Context, force bool) (published bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	document, err := p.source.Rebuild(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to rebuild registry: %w", err)
	}
	if !force && p.last != nil && bytes.Equal(document, p.last) {
		p.logger.DebugContext(ctx, "registry unchanged, skipping publish")
		return false, nil
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.target.Publish(publishCtx, document); err != nil {
		return false, err
	}
	p.last = document

	p.logger.InfoContext(ctx, "registry published", slog.Int("bytes", len(document)))
	return true, nil
}

// ParseSchedule parses a standard five field cron spec or a descriptor such
// as "@hourly" or "@every 30m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cron.
		NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).
		Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron spec '%s': %w", spec, err)
	}
	return s, nil
}

// Schedule publishes once immediately and then at every trigger of schedule
// until ctx is done. Failed publishes are logged and retried at the next
// trigger.
func (p *Publisher) Schedule(ctx context.Context, schedule cron.Schedule) error {
	for {
		runCtx := infrastructure.ContextWithTraceID(ctx)
		if _, err := p.Publish(runCtx, false); err != nil {
			p.logger.ErrorContext(runCtx, "scheduled publish failed", slog.String("error", err.Error()))
		}

		next := schedule.Next(time.Now())
		p.logger.DebugContext(ctx, "next publish scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
