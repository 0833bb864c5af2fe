package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the monitor's counters. A nil *Metrics records nothing.
type Metrics struct {
	frames       metric.Int64Counter
	detections   metric.Int64Counter
	reconnects   metric.Int64Counter
	events       metric.Int64Counter
	notifyErrors metric.Int64Counter
}

// NewMetrics creates the instruments on m.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	var (
		out Metrics
		err error
	)
	if out.frames, err = m.Int64Counter("feeder.frames.processed",
		metric.WithDescription("Frames run through detection")); err != nil {
		return nil, err
	}
	if out.detections, err = m.Int64Counter("feeder.detections",
		metric.WithDescription("Markers detected, by kind")); err != nil {
		return nil, err
	}
	if out.reconnects, err = m.Int64Counter("feeder.camera.reconnects",
		metric.WithDescription("Camera reconnects started")); err != nil {
		return nil, err
	}
	if out.events, err = m.Int64Counter("feeder.activity.events",
		metric.WithDescription("Feeding lifecycle events, by type")); err != nil {
		return nil, err
	}
	if out.notifyErrors, err = m.Int64Counter("feeder.notify.errors",
		metric.WithDescription("Failed activity service calls")); err != nil {
		return nil, err
	}
	return &out, nil
}

// FrameProcessed counts one processed frame.
func (m *Metrics) FrameProcessed(ctx context.Context) {
	if m == nil {
		return
	}
	m.frames.Add(ctx, 1)
}

// Detections counts markers of one kind.
func (m *Metrics) Detections(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.detections.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// Reconnects adds n camera reconnects.
func (m *Metrics) Reconnects(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reconnects.Add(ctx, n)
}

// Event counts one lifecycle event.
func (m *Metrics) Event(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// NotifyError counts one failed service call.
func (m *Metrics) NotifyError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.notifyErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
