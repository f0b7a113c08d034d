package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/casebook/internal/domain"
)

// Outcome is the terminal state of one dispatched envelope.
type Outcome string

const (
	OutcomeDroppedMissingKey  Outcome = "dropped_missing_key"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeAlreadyReserved    Outcome = "already_reserved"
	OutcomeDroppedUnsupported Outcome = "dropped_unsupported"
	OutcomeDroppedMalformed   Outcome = "dropped_malformed"
	OutcomeCommitted          Outcome = "committed"
	OutcomeFailed             Outcome = "failed"
)

// Acknowledged reports whether the transport may consider the delivery done.
func (o Outcome) Acknowledged() bool {
	return o != OutcomeFailed
}

// DispatchObserver receives one call per dispatched envelope.
type DispatchObserver interface {
	ObserveDispatch(ctx context.Context, env domain.Envelope, outcome Outcome, elapsed time.Duration)
}

// Dispatcher ties inbound envelopes to ledger-guarded domain actions.
// It holds no per-message state, so Dispatch may be called from any number
// of goroutines; the ledger reservation is the only mutual-exclusion point.
type Dispatcher struct {
	ledger   domain.Ledger
	cases    *CaseService
	timeout  time.Duration
	observer DispatchObserver
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchTimeout bounds each domain action. A timeout counts as a failure.
func WithDispatchTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithObserver reports outcomes to o.
func WithObserver(o DispatchObserver) DispatcherOption {
	return func(disp *Dispatcher) { disp.observer = o }
}

// WithLogger sets the logger used for dropped and failed envelopes.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) { disp.logger = l }
}

// NewDispatcher creates a dispatcher over the given ledger and case service.
func NewDispatcher(ledger domain.Ledger, cases *CaseService, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ledger: ledger,
		cases:  cases,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch processes one envelope. A nil error means the delivery can be
// acknowledged. A non-nil error means the domain action failed (the key is
// marked FAILED and a redelivery will retry it) or the ledger could not be
// reached; in both cases the transport must redeliver. A *StaleRecordError
// from a concurrent update is such a failure: the retry re-reads the record.
func (d *Dispatcher) Dispatch(ctx context.Context, env domain.Envelope) (Outcome, error) {
	start := time.Now()
	outcome, err := d.dispatch(ctx, env)
	if d.observer != nil {
		d.observer.ObserveDispatch(ctx, env, outcome, time.Since(start))
	}
	return outcome, err
}

func (d *Dispatcher) dispatch(ctx context.Context, env domain.Envelope) (Outcome, error) {
	log := d.logger.With(
		"topic", env.Topic(),
		"idempotency_key", env.IdempotencyKey,
	)

	if !env.HasKey() {
		log.WarnContext(ctx, "dropping event without idempotency key")
		return OutcomeDroppedMissingKey, nil
	}
	key := env.IdempotencyKey

	skip, err := d.ledger.ShouldSkipProcessing(ctx, key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("checking idempotency key: %w", err)
	}
	if skip {
		log.InfoContext(ctx, "skipping already processed event")
		return OutcomeSkipped, nil
	}

	r, err := d.ledger.CheckAndInsert(ctx, key, string(env.Domain), string(env.Action))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("reserving idempotency key: %w", err)
	}
	switch r {
	case domain.ReservationDone:
		log.InfoContext(ctx, "skipping already processed event")
		return OutcomeSkipped, nil
	case domain.ReservationBusy:
		log.InfoContext(ctx, "event is already being processed elsewhere")
		return OutcomeAlreadyReserved, nil
	}

	// From here the key is reserved. Drops below leave the entry PENDING;
	// the ledger's reservation TTL makes it claimable by a later delivery.
	if !Supports(env.Domain) {
		log.WarnContext(ctx, "dropping event for unsupported domain", "domain", env.Domain)
		return OutcomeDroppedUnsupported, nil
	}

	if env.Action != domain.ActionCreate && env.Action != domain.ActionUpdate {
		log.WarnContext(ctx, "dropping event with unsupported action", "action", env.Action)
		return OutcomeDroppedUnsupported, nil
	}

	entity, err := Decode(env.Domain, env.Payload)
	if err != nil {
		log.ErrorContext(ctx, "dropping malformed event", "error", err)
		return OutcomeDroppedMalformed, nil
	}

	actionCtx, cancel := withDeadline(ctx, d.timeout)
	defer cancel()

	rec, actionErr := d.cases.Perform(actionCtx, env.Domain, env.Action, entity)
	if actionErr != nil {
		actionErr = fmt.Errorf("%s %s: %w", env.Domain, env.Action, actionErr)
	}
	if err := settle(ctx, d.ledger, key, rec.ID, actionErr); err != nil {
		log.ErrorContext(ctx, "event processing failed",
			"error", err,
			"permanent", domain.IsPermanent(err),
			"reservation", r.String(),
		)
		return OutcomeFailed, err
	}

	log.InfoContext(ctx, "event processed",
		"business_id", rec.ID,
		"status", rec.Status,
		"reservation", r.String(),
	)
	return OutcomeCommitted, nil
}
