package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/casebook/internal/domain"
)

// Compile-time check: Ledger implements domain.Ledger.
var _ domain.Ledger = (*Ledger)(nil)

// maxErrorMessage bounds the stored failure detail.
const maxErrorMessage = 1000

// Ledger implements domain.Ledger on the idempotency_history table. The
// primary key on idempotency_key is the mutual-exclusion point: every state
// change is a single conditional statement, so concurrent callers on the
// same key serialize in SQLite while unrelated keys never wait on each other
// beyond the database's own write lock.
type Ledger struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithReservationTTL lets a PENDING entry older than ttl be claimed again.
// A zero ttl keeps PENDING entries reserved forever.
func WithReservationTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) { l.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger wraps a migrated database connection.
func NewLedger(db *sql.DB, opts ...LedgerOption) *Ledger {
	l := &Ledger{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *Ledger) ShouldSkipProcessing(ctx context.Context, key string) (bool, error) {
	var status string
	err := l.db.QueryRowContext(ctx,
		`SELECT status FROM idempotency_history WHERE idempotency_key = ?`, key,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking idempotency key: %w", err)
	}
	return domain.HistoryStatus(status) == domain.HistorySuccess, nil
}

func (l *Ledger) CheckAndInsert(ctx context.Context, key, businessType, action string) (domain.Reservation, error) {
	now := l.now()

	result, err := l.db.ExecContext(ctx,
		`INSERT INTO idempotency_history
		   (idempotency_key, business_type, business_action, status, attempts, created_at, reserved_at)
		 VALUES (?, ?, ?, 'PENDING', 1, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		key, businessType, action, formatTime(now), formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("reserving idempotency key: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 1 {
		return domain.ReservationAcquired, nil
	}

	// The key exists. Re-arm it only if the last attempt failed or its
	// reservation was abandoned.
	staleBefore := ""
	if l.ttl > 0 {
		staleBefore = formatTime(now.Add(-l.ttl))
	}
	result, err = l.db.ExecContext(ctx,
		`UPDATE idempotency_history
		 SET status = 'PENDING', attempts = attempts + 1, reserved_at = ?,
		     completed_at = NULL, error_message = NULL
		 WHERE idempotency_key = ?
		   AND (status = 'FAILED' OR (status = 'PENDING' AND reserved_at < ?))`,
		formatTime(now), key, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("re-arming idempotency key: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 1 {
		return domain.ReservationRetry, nil
	}

	entry, err := l.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if entry.Status == domain.HistorySuccess {
		return domain.ReservationDone, nil
	}
	return domain.ReservationBusy, nil
}

func (l *Ledger) MarkHistorySuccess(ctx context.Context, key, businessID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE idempotency_history
		 SET status = 'SUCCESS', business_id = ?, completed_at = ?
		 WHERE idempotency_key = ? AND status = 'PENDING'`,
		businessID, formatTime(l.now()), key,
	)
	if err != nil {
		return fmt.Errorf("marking idempotency success: %w", err)
	}
	return nil
}

func (l *Ledger) MarkHistoryFailure(ctx context.Context, key, message string) error {
	if len(message) > maxErrorMessage {
		message = message[:maxErrorMessage]
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE idempotency_history
		 SET status = 'FAILED', error_message = ?, completed_at = ?
		 WHERE idempotency_key = ? AND status = 'PENDING'`,
		message, formatTime(l.now()), key,
	)
	if err != nil {
		return fmt.Errorf("marking idempotency failure: %w", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, key string) (domain.HistoryEntry, error) {
	var h domain.HistoryEntry
	var status, createdAt, reservedAt string
	var businessID, completedAt, errorMessage sql.NullString

	err := l.db.QueryRowContext(ctx,
		`SELECT idempotency_key, business_type, business_action, business_id, status,
		        attempts, created_at, reserved_at, completed_at, error_message
		 FROM idempotency_history WHERE idempotency_key = ?`, key,
	).Scan(&h.Key, &h.BusinessType, &h.BusinessAction, &businessID, &status,
		&h.Attempts, &createdAt, &reservedAt, &completedAt, &errorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryEntry{}, domain.ErrHistoryNotFound
	}
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("scanning idempotency history: %w", err)
	}

	h.Status = domain.HistoryStatus(status)
	h.BusinessID = businessID.String
	h.ErrorMessage = errorMessage.String
	h.CreatedAt = parseTime(createdAt)
	h.ReservedAt = parseTime(reservedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		h.CompletedAt = &t
	}
	return h, nil
}
