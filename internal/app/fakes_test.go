package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/neomorfeo/casebook/internal/domain"
)

// --- Mocks ---

type memLedger struct {
	mu      sync.Mutex
	entries map[string]domain.HistoryEntry
	err     error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]domain.HistoryEntry)}
}

func (l *memLedger) ShouldSkipProcessing(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.entries[key].Status == domain.HistorySuccess, nil
}

func (l *memLedger) CheckAndInsert(_ context.Context, key, businessType, action string) (domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	h, ok := l.entries[key]
	switch {
	case !ok:
		l.entries[key] = domain.HistoryEntry{
			Key:            key,
			BusinessType:   businessType,
			BusinessAction: action,
			Status:         domain.HistoryPending,
			Attempts:       1,
			CreatedAt:      time.Now(),
			ReservedAt:     time.Now(),
		}
		return domain.ReservationAcquired, nil
	case h.Status == domain.HistoryFailed:
		h.Status = domain.HistoryPending
		h.Attempts++
		h.ErrorMessage = ""
		l.entries[key] = h
		return domain.ReservationRetry, nil
	case h.Status == domain.HistorySuccess:
		return domain.ReservationDone, nil
	}
	return domain.ReservationBusy, nil
}

func (l *memLedger) MarkHistorySuccess(_ context.Context, key, businessID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.entries[key]; ok && h.Status == domain.HistoryPending {
		h.Status = domain.HistorySuccess
		h.BusinessID = businessID
		l.entries[key] = h
	}
	return nil
}

func (l *memLedger) MarkHistoryFailure(_ context.Context, key, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.entries[key]; ok && h.Status == domain.HistoryPending {
		h.Status = domain.HistoryFailed
		h.ErrorMessage = message
		l.entries[key] = h
	}
	return nil
}

func (l *memLedger) Get(_ context.Context, key string) (domain.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.entries[key]
	if !ok {
		return domain.HistoryEntry{}, domain.ErrHistoryNotFound
	}
	return h, nil
}

func (l *memLedger) entry(key string) domain.HistoryEntry {
	h, _ := l.Get(context.Background(), key)
	return h
}

type memRepo struct {
	mu       sync.Mutex
	records  map[string]domain.Record
	creates  int
	failNext error
	block    bool
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]domain.Record)}
}

func (m *memRepo) Create(ctx context.Context, rec domain.Record) error {
	m.mu.Lock()
	m.creates++
	block := m.block
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *memRepo) Get(_ context.Context, d domain.Domain, id string) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Domain != d {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *memRepo) List(_ context.Context, filter domain.ListFilter) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Record
	for _, rec := range m.records {
		if rec.Domain != filter.Domain {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, rec domain.Record, expected domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	if !ok || cur.Domain != rec.Domain {
		return domain.ErrRecordNotFound
	}
	if cur.Status != expected {
		return &domain.StaleRecordError{Domain: rec.Domain, ID: rec.ID, Expected: expected}
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memRepo) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// barrierRepo holds every Get until readers callers have read, so they all
// act on the same snapshot before any of them writes.
type barrierRepo struct {
	*memRepo
	wg sync.WaitGroup
}

func newBarrierRepo(inner *memRepo, readers int) *barrierRepo {
	r := &barrierRepo{memRepo: inner}
	r.wg.Add(readers)
	return r
}

func (r *barrierRepo) Get(ctx context.Context, d domain.Domain, id string) (domain.Record, error) {
	rec, err := r.memRepo.Get(ctx, d, id)
	r.wg.Done()
	r.wg.Wait()
	return rec, err
}

var errStorage = errors.New("storage unavailable")
