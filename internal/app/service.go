package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/casebook/internal/domain"
)

// CaseService applies create, update and transition actions to case records.
// Calls that carry an idempotency key go through the ledger first.
type CaseService struct {
	repo    domain.RecordRepository
	ledger  domain.Ledger
	engine  *domain.Engine
	timeout time.Duration
	now     func() time.Time
}

// ServiceOption configures a CaseService.
type ServiceOption func(*CaseService)

// WithActionTimeout bounds each keyed action. It must stay below the
// ledger's reservation TTL, or a slow action can be claimed twice.
func WithActionTimeout(d time.Duration) ServiceOption {
	return func(s *CaseService) { s.timeout = d }
}

// NewCaseService creates a service with the given adapters.
func NewCaseService(repo domain.RecordRepository, ledger domain.Ledger, engine *domain.Engine, opts ...ServiceOption) *CaseService {
	if engine == nil {
		engine = domain.DefaultEngine
	}
	s := &CaseService{
		repo:   repo,
		ledger: ledger,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create stores a new record of domain d. When key is non-empty the call is
// deduplicated through the ledger: a key that already succeeded returns the
// record it produced without creating another one.
func (s *CaseService) Create(ctx context.Context, d domain.Domain, key string, e domain.Entity) (domain.Record, error) {
	return s.idempotent(ctx, key, d, domain.ActionCreate, func(ctx context.Context) (domain.Record, error) {
		return s.create(ctx, d, e)
	})
}

// Update replaces the record identified by the entity's ID. A requested
// event, or a changed status, must be accepted by d's state machine.
func (s *CaseService) Update(ctx context.Context, d domain.Domain, key string, e domain.Entity) (domain.Record, error) {
	return s.idempotent(ctx, key, d, domain.ActionUpdate, func(ctx context.Context) (domain.Record, error) {
		return s.update(ctx, d, e)
	})
}

// Transition applies a lifecycle event to a stored record. The write only
// lands if the record is still in the status the event was checked against;
// otherwise a *StaleRecordError is returned.
func (s *CaseService) Transition(ctx context.Context, d domain.Domain, id string, event domain.Event) (domain.Record, error) {
	rec, err := s.repo.Get(ctx, d, id)
	if err != nil {
		return domain.Record{}, err
	}

	next, err := s.engine.Apply(d, rec.Status, event)
	if err != nil {
		return domain.Record{}, err
	}

	e, err := Decode(d, rec.Body)
	if err != nil {
		return domain.Record{}, fmt.Errorf("decoding stored record: %w", err)
	}
	e.Header().Status = next

	return s.save(ctx, rec, e)
}

// Get returns one record.
func (s *CaseService) Get(ctx context.Context, d domain.Domain, id string) (domain.Record, error) {
	return s.repo.Get(ctx, d, id)
}

// List returns records matching the given filter.
func (s *CaseService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Record, error) {
	return s.repo.List(ctx, filter)
}

// History returns the ledger entry for an idempotency key.
func (s *CaseService) History(ctx context.Context, key string) (domain.HistoryEntry, error) {
	return s.ledger.Get(ctx, key)
}

// Engine returns the transition engine the service validates against.
func (s *CaseService) Engine() *domain.Engine {
	return s.engine
}

// Perform runs the domain action bound to a. It does not touch the ledger.
func (s *CaseService) Perform(ctx context.Context, d domain.Domain, a domain.Action, e domain.Entity) (domain.Record, error) {
	switch a {
	case domain.ActionCreate:
		return s.create(ctx, d, e)
	case domain.ActionUpdate:
		return s.update(ctx, d, e)
	}
	return domain.Record{}, fmt.Errorf("unsupported action %q", a)
}

func (s *CaseService) create(ctx context.Context, d domain.Domain, e domain.Entity) (domain.Record, error) {
	m, ok := domain.MachineFor(d)
	if !ok {
		return domain.Record{}, &domain.ForeignValueError{Kind: "domain", Value: string(d)}
	}

	h := e.Header()
	if h.Status != "" && h.Status != m.Initial {
		return domain.Record{}, &domain.ValidationError{
			Domain: d,
			Field:  "status",
			Reason: fmt.Sprintf("new records start in %s", m.Initial),
		}
	}
	if err := e.Validate(); err != nil {
		return domain.Record{}, err
	}

	// Identity is always assigned here; a caller-supplied ID is discarded.
	h.ID = newID()
	h.Status = m.Initial
	h.Event = ""

	body, err := json.Marshal(e)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encoding record: %w", err)
	}

	now := s.now()
	rec := domain.Record{
		ID:        h.ID,
		Domain:    d,
		Status:    h.Status,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return domain.Record{}, fmt.Errorf("creating %s record: %w", d, err)
	}
	return rec, nil
}

func (s *CaseService) update(ctx context.Context, d domain.Domain, e domain.Entity) (domain.Record, error) {
	h := e.Header()
	if h.ID == "" {
		return domain.Record{}, &domain.ValidationError{Domain: d, Field: "id", Reason: "required for update"}
	}

	existing, err := s.repo.Get(ctx, d, h.ID)
	if err != nil {
		return domain.Record{}, err
	}

	next, err := s.resolveStatus(d, existing.Status, h.Status, h.Event)
	if err != nil {
		return domain.Record{}, err
	}
	if err := e.Validate(); err != nil {
		return domain.Record{}, err
	}
	h.Status = next

	return s.save(ctx, existing, e)
}

// resolveStatus decides the status an update moves to. An explicit event
// wins; otherwise a changed status must be one step away in the table.
func (s *CaseService) resolveStatus(d domain.Domain, current, requested domain.Status, event domain.Event) (domain.Status, error) {
	if event != "" {
		dst, err := s.engine.Apply(d, current, event)
		if err != nil {
			return current, err
		}
		if requested != "" && requested != dst {
			return current, &domain.ValidationError{
				Domain: d,
				Field:  "status",
				Reason: fmt.Sprintf("event %s leads to %s, not %s", event, dst, requested),
			}
		}
		return dst, nil
	}

	if requested == "" || requested == current {
		return current, nil
	}

	m, _ := domain.MachineFor(d)
	if !m.HasState(requested) {
		return current, &domain.ForeignValueError{Domain: d, Kind: "status", Value: string(requested)}
	}
	if _, ok := s.engine.EventFor(d, current, requested); !ok {
		return current, &domain.TransitionError{Domain: d, Current: current, Target: requested}
	}
	return requested, nil
}

// save writes e over rec, conditional on rec still holding the status it
// was read with.
func (s *CaseService) save(ctx context.Context, rec domain.Record, e domain.Entity) (domain.Record, error) {
	expected := rec.Status
	h := e.Header()
	h.ID = rec.ID
	h.Event = ""

	body, err := json.Marshal(e)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encoding record: %w", err)
	}

	rec.Status = h.Status
	rec.Body = body
	rec.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, rec, expected); err != nil {
		return domain.Record{}, fmt.Errorf("updating %s record: %w", rec.Domain, err)
	}
	return rec, nil
}

// idempotent wraps fn with the ledger protocol shared with the dispatcher:
// skip a completed key, reserve, run, then record the outcome.
func (s *CaseService) idempotent(ctx context.Context, key string, d domain.Domain, a domain.Action, fn func(context.Context) (domain.Record, error)) (domain.Record, error) {
	if key == "" {
		actionCtx, cancel := withDeadline(ctx, s.timeout)
		defer cancel()
		return fn(actionCtx)
	}

	skip, err := s.ledger.ShouldSkipProcessing(ctx, key)
	if err != nil {
		return domain.Record{}, err
	}
	if skip {
		return s.replay(ctx, key)
	}

	r, err := s.ledger.CheckAndInsert(ctx, key, string(d), string(a))
	if err != nil {
		return domain.Record{}, err
	}
	switch r {
	case domain.ReservationDone:
		return s.replay(ctx, key)
	case domain.ReservationBusy:
		return domain.Record{}, &domain.InFlightError{Key: key}
	}

	actionCtx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()
	rec, err := fn(actionCtx)
	return rec, settle(ctx, s.ledger, key, rec.ID, err)
}

// withDeadline bounds an action by d. Zero leaves ctx unbounded.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// replay returns the record a completed key produced.
func (s *CaseService) replay(ctx context.Context, key string) (domain.Record, error) {
	h, err := s.ledger.Get(ctx, key)
	if err != nil {
		return domain.Record{}, err
	}
	return s.repo.Get(ctx, domain.Domain(h.BusinessType), h.BusinessID)
}

// settle records the outcome of an owned key. The ledger write uses a
// context that outlives a cancelled or timed-out action.
func settle(ctx context.Context, ledger domain.Ledger, key, businessID string, actionErr error) error {
	ctx = context.WithoutCancel(ctx)
	if actionErr != nil {
		if err := ledger.MarkHistoryFailure(ctx, key, actionErr.Error()); err != nil {
			return errors.Join(actionErr, err)
		}
		return actionErr
	}
	return ledger.MarkHistorySuccess(ctx, key, businessID)
}
