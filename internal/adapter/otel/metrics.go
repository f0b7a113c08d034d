package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/neomorfeo/casebook/internal/app"
	"github.com/neomorfeo/casebook/internal/domain"
)

// DispatchMetrics records one counter increment and one latency sample per
// dispatched envelope, labelled by topic and outcome.
type DispatchMetrics struct {
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

var _ app.DispatchObserver = (*DispatchMetrics)(nil)

// NewDispatchMetrics registers the dispatch instruments on mp.
func NewDispatchMetrics(mp metric.MeterProvider) (*DispatchMetrics, error) {
	meter := mp.Meter(tracerName)

	outcomes, err := meter.Int64Counter("casebook.dispatch.outcomes",
		metric.WithDescription("Dispatched envelopes by topic and outcome."),
		metric.WithUnit("{envelope}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outcome counter: %w", err)
	}

	duration, err := meter.Float64Histogram("casebook.dispatch.duration",
		metric.WithDescription("Time spent dispatching one envelope."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &DispatchMetrics{outcomes: outcomes, duration: duration}, nil
}

// ObserveDispatch implements app.DispatchObserver.
func (m *DispatchMetrics) ObserveDispatch(ctx context.Context, env domain.Envelope, outcome app.Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("messaging.destination.name", env.Topic()),
		attribute.String("dispatch.outcome", string(outcome)),
	)
	m.outcomes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
