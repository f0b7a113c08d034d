package domain

import "time"

// HistoryStatus is the outcome of an idempotency key.
type HistoryStatus string

const (
	HistoryPending HistoryStatus = "PENDING"
	HistorySuccess HistoryStatus = "SUCCESS"
	HistoryFailed  HistoryStatus = "FAILED"
)

// HistoryEntry is one row of the idempotency ledger.
type HistoryEntry struct {
	Key            string
	BusinessType   string
	BusinessAction string
	BusinessID     string
	Status         HistoryStatus
	Attempts       int
	CreatedAt      time.Time
	ReservedAt     time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// Terminal reports whether the entry has reached SUCCESS or FAILED.
func (h HistoryEntry) Terminal() bool {
	return h.Status == HistorySuccess || h.Status == HistoryFailed
}

// Reservation is the result of CheckAndInsert.
type Reservation int

const (
	// ReservationAcquired means the caller inserted a new PENDING entry.
	ReservationAcquired Reservation = iota
	// ReservationRetry means the caller re-armed a FAILED or abandoned
	// PENDING entry and owns the next attempt.
	ReservationRetry
	// ReservationBusy means another caller holds a live PENDING entry.
	ReservationBusy
	// ReservationDone means the key already completed successfully.
	ReservationDone
)

// Owned reports whether the caller may apply side effects for the key.
func (r Reservation) Owned() bool {
	return r == ReservationAcquired || r == ReservationRetry
}

func (r Reservation) String() string {
	switch r {
	case ReservationAcquired:
		return "acquired"
	case ReservationRetry:
		return "retry"
	case ReservationBusy:
		return "busy"
	case ReservationDone:
		return "done"
	}
	return "unknown"
}
