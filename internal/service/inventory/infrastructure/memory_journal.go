package infrastructure

import (
	"context"
	"sync"
	"time"

	"fulfillment/internal/service/inventory/domain"
)

type journalEntry struct {
	result    *domain.ReservationResult // nil 代表占位中
	claimedAt time.Time
}

type MemoryReservationJournal struct {
	mu      sync.Mutex
	records map[string]*journalEntry
}

func NewMemoryReservationJournal() *MemoryReservationJournal {
	return &MemoryReservationJournal{records: make(map[string]*journalEntry)}
}

func (j *MemoryReservationJournal) Claim(_ context.Context, orderID string, lease time.Duration) (*domain.ReservationResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, ok := j.records[orderID]
	if !ok {
		j.records[orderID] = &journalEntry{claimedAt: time.Now()}
		return nil, nil
	}
	if rec.result == nil {
		if time.Since(rec.claimedAt) > lease {
			return nil, domain.ErrClaimExpired
		}
		return nil, domain.ErrReservationInFlight
	}
	return rec.result.Clone(), nil
}

func (j *MemoryReservationJournal) Complete(_ context.Context, result *domain.ReservationResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := &journalEntry{result: result.Clone(), claimedAt: time.Now()}
	if rec, ok := j.records[result.OrderID]; ok {
		entry.claimedAt = rec.claimedAt
	}
	j.records[result.OrderID] = entry
	return nil
}

func (j *MemoryReservationJournal) Abandon(_ context.Context, orderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if rec, ok := j.records[orderID]; ok && rec.result == nil {
		delete(j.records, orderID)
	}
	return nil
}
