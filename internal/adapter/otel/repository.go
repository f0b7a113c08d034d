package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/casebook/internal/domain"
)

const tracerName = "github.com/neomorfeo/casebook/internal/adapter/otel"

// recordError marks span as failed when err is non-nil.
func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TracingRecordRepository wraps a domain.RecordRepository with OpenTelemetry
// tracing. Each method creates a span with record attributes and records errors.
type TracingRecordRepository struct {
	next   domain.RecordRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRecordRepository implements domain.RecordRepository.
var _ domain.RecordRepository = (*TracingRecordRepository)(nil)

// NewTracingRecordRepository creates a tracing decorator around the given repository.
func NewTracingRecordRepository(next domain.RecordRepository) *TracingRecordRepository {
	return &TracingRecordRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRecordRepository) Create(ctx context.Context, rec domain.Record) error {
	ctx, span := r.tracer.Start(ctx, "RecordRepository.Create",
		trace.WithAttributes(
			attribute.String("case.domain", string(rec.Domain)),
			attribute.String("case.id", rec.ID),
			attribute.String("case.status", string(rec.Status)),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, rec)
	recordError(span, err)
	return err
}

func (r *TracingRecordRepository) Get(ctx context.Context, d domain.Domain, id string) (domain.Record, error) {
	ctx, span := r.tracer.Start(ctx, "RecordRepository.Get",
		trace.WithAttributes(
			attribute.String("case.domain", string(d)),
			attribute.String("case.id", id),
		),
	)
	defer span.End()

	rec, err := r.next.Get(ctx, d, id)
	recordError(span, err)
	return rec, err
}

func (r *TracingRecordRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Record, error) {
	ctx, span := r.tracer.Start(ctx, "RecordRepository.List",
		trace.WithAttributes(
			attribute.String("case.domain", string(filter.Domain)),
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	recs, err := r.next.List(ctx, filter)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(recs)))
	}
	return recs, err
}

func (r *TracingRecordRepository) Update(ctx context.Context, rec domain.Record, expected domain.Status) error {
	ctx, span := r.tracer.Start(ctx, "RecordRepository.Update",
		trace.WithAttributes(
			attribute.String("case.domain", string(rec.Domain)),
			attribute.String("case.id", rec.ID),
			attribute.String("case.status", string(rec.Status)),
			attribute.String("case.expected_status", string(expected)),
		),
	)
	defer span.End()

	err := r.next.Update(ctx, rec, expected)
	recordError(span, err)
	return err
}
