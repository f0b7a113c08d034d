package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/casebook/internal/domain"
)

// TracingLedger wraps a domain.Ledger with OpenTelemetry tracing. Reservation
// results and skip decisions are recorded as span attributes so a trace
// shows why a delivery did or did not run its action.
type TracingLedger struct {
	next   domain.Ledger
	tracer trace.Tracer
}

var _ domain.Ledger = (*TracingLedger)(nil)

// NewTracingLedger creates a tracing decorator around the given ledger.
func NewTracingLedger(next domain.Ledger) *TracingLedger {
	return &TracingLedger{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (l *TracingLedger) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, "Ledger."+name,
		trace.WithAttributes(attribute.String("idempotency.key", key)),
	)
}

func (l *TracingLedger) ShouldSkipProcessing(ctx context.Context, key string) (bool, error) {
	ctx, span := l.start(ctx, "ShouldSkipProcessing", key)
	defer span.End()

	skip, err := l.next.ShouldSkipProcessing(ctx, key)
	recordError(span, err)
	span.SetAttributes(attribute.Bool("idempotency.skip", skip))
	return skip, err
}

func (l *TracingLedger) CheckAndInsert(ctx context.Context, key, businessType, action string) (domain.Reservation, error) {
	ctx, span := l.start(ctx, "CheckAndInsert", key)
	defer span.End()
	span.SetAttributes(
		attribute.String("case.domain", businessType),
		attribute.String("case.action", action),
	)

	r, err := l.next.CheckAndInsert(ctx, key, businessType, action)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.String("idempotency.reservation", r.String()))
	}
	return r, err
}

func (l *TracingLedger) MarkHistorySuccess(ctx context.Context, key, businessID string) error {
	ctx, span := l.start(ctx, "MarkHistorySuccess", key)
	defer span.End()
	span.SetAttributes(attribute.String("case.id", businessID))

	err := l.next.MarkHistorySuccess(ctx, key, businessID)
	recordError(span, err)
	return err
}

func (l *TracingLedger) MarkHistoryFailure(ctx context.Context, key, message string) error {
	ctx, span := l.start(ctx, "MarkHistoryFailure", key)
	defer span.End()

	err := l.next.MarkHistoryFailure(ctx, key, message)
	recordError(span, err)
	return err
}

func (l *TracingLedger) Get(ctx context.Context, key string) (domain.HistoryEntry, error) {
	ctx, span := l.start(ctx, "Get", key)
	defer span.End()

	h, err := l.next.Get(ctx, key)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(
			attribute.String("idempotency.status", string(h.Status)),
			attribute.Int("idempotency.attempts", h.Attempts),
		)
	}
	return h, err
}
