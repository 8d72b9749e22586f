package websocket

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// HubMetrics holds the status feed instruments. A nil *HubMetrics records
// nothing.
type HubMetrics struct {
	ActiveClients   metric.Int64UpDownCounter
	MessagesSent    metric.Int64Counter
	MessagesDropped metric.Int64Counter
}

// NewHubMetrics creates the status feed instruments on meter
func NewHubMetrics(meter metric.Meter) (*HubMetrics, error) {
	m := &HubMetrics{}
	var err error

	if m.ActiveClients, err = meter.Int64UpDownCounter("websocket_active_clients",
		metric.WithDescription("Connected status feed clients")); err != nil {
		return nil, fmt.Errorf("failed to create active clients counter: %w", err)
	}
	if m.MessagesSent, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to status feed clients")); err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}
	if m.MessagesDropped, err = meter.Int64Counter("websocket_messages_dropped_total",
		metric.WithDescription("Messages dropped because a queue was full")); err != nil {
		return nil, fmt.Errorf("failed to create dropped counter: %w", err)
	}
	return m, nil
}

func (m *HubMetrics) clientConnected(ctx context.Context) {
	if m != nil {
		m.ActiveClients.Add(ctx, 1)
	}
}

func (m *HubMetrics) clientDisconnected(ctx context.Context) {
	if m != nil {
		m.ActiveClients.Add(ctx, -1)
	}
}

func (m *HubMetrics) messageSent(ctx context.Context) {
	if m != nil {
		m.MessagesSent.Add(ctx, 1)
	}
}

func (m *HubMetrics) messageDropped(ctx context.Context) {
	if m != nil {
		m.MessagesDropped.Add(ctx, 1)
	}
}
