package domain

import "context"

// RecordRepository defines the persistence contract for case records.
type RecordRepository interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, d Domain, id string) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
	// Update writes rec only while the stored status still equals expected.
	// It returns ErrRecordNotFound or a *StaleRecordError otherwise.
	Update(ctx context.Context, rec Record, expected Status) error
}

// ListFilter holds optional criteria for listing records of one domain.
type ListFilter struct {
	Domain Domain
	Status *Status
	Limit  int
	Offset int
}

// Ledger records the outcome of every idempotency key. It is shared by the
// synchronous HTTP path and the asynchronous event path.
type Ledger interface {
	// ShouldSkipProcessing reports whether key already completed successfully.
	ShouldSkipProcessing(ctx context.Context, key string) (bool, error)
	// CheckAndInsert reserves key for the caller. Only one concurrent caller
	// can acquire a given key.
	CheckAndInsert(ctx context.Context, key, businessType, action string) (Reservation, error)
	// MarkHistorySuccess moves a PENDING entry to SUCCESS. No-op otherwise.
	MarkHistorySuccess(ctx context.Context, key, businessID string) error
	// MarkHistoryFailure moves a PENDING entry to FAILED. No-op otherwise.
	MarkHistoryFailure(ctx context.Context, key, message string) error
	Get(ctx context.Context, key string) (HistoryEntry, error)
}

// EventPublisher hands an inbound envelope to the at-least-once transport.
type EventPublisher interface {
	Publish(ctx context.Context, env Envelope) error
}
