package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/casebook/internal/domain"
)

// Compile-time check: RecordRepository implements domain.RecordRepository.
var _ domain.RecordRepository = (*RecordRepository)(nil)

// RecordRepository implements domain.RecordRepository using SQLite.
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository wraps a migrated database connection.
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, rec domain.Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO records (id, domain, status, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Domain), string(rec.Status), string(rec.Body),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record %q already exists: %w", rec.ID, err)
		}
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, d domain.Domain, id string) (domain.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, domain, status, body, created_at, updated_at
		 FROM records WHERE domain = ? AND id = ?`, string(d), id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("scanning record: %w", err)
	}
	return rec, nil
}

func (r *RecordRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Record, error) {
	query := `SELECT id, domain, status, body, created_at, updated_at FROM records WHERE domain = ?`
	args := []any{string(filter.Domain)}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *RecordRepository) Update(ctx context.Context, rec domain.Record, expected domain.Status) error {
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE records SET status = ?, body = ?, updated_at = ?
		 WHERE domain = ? AND id = ? AND status = ?`,
		string(rec.Status), string(rec.Body), formatTime(updated),
		string(rec.Domain), rec.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM records WHERE domain = ? AND id = ?)`,
		string(rec.Domain), rec.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking record: %w", err)
	}
	if !exists {
		return domain.ErrRecordNotFound
	}
	return &domain.StaleRecordError{Domain: rec.Domain, ID: rec.ID, Expected: expected}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.Record, error) {
	var rec domain.Record
	var d, status, body, createdAt, updatedAt string

	if err := s.Scan(&rec.ID, &d, &status, &body, &createdAt, &updatedAt); err != nil {
		return domain.Record{}, err
	}

	rec.Domain = domain.Domain(d)
	rec.Status = domain.Status(status)
	rec.Body = []byte(body)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}
