// Package store keeps analysis reports so they can be fetched by ID after
// the request that produced them has finished.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
)

// ErrNotFound is returned when no report exists for an ID.
var ErrNotFound = errors.New("store: report not found")

// Store persists reports keyed by their ID.
type Store interface {
	Save(ctx context.Context, r analysis.Report) error
	Get(ctx context.Context, id string) (analysis.Report, error)
}

// DefaultMemoryCapacity bounds a MemoryStore built with a non-positive
// capacity.
const DefaultMemoryCapacity = 1024

// MemoryStore is a bounded in-process store. When full, the oldest report
// is evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	reports  map[string]analysis.Report
	order    []string
}

// NewMemoryStore constructs a MemoryStore holding at most capacity reports.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		reports:  make(map[string]analysis.Report, capacity),
	}
}

// Save stores r, replacing any report with the same ID.
func (s *MemoryStore) Save(ctx context.Context, r analysis.Report) error {
	if err := ctx.Err(); err != nil {
		metrics.RecordStoreOperation("save", "error")
		return err
	}

	s.mu.Lock()
	if _, exists := s.reports[r.ID]; !exists {
		if len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.reports, oldest)
		}
		s.order = append(s.order, r.ID)
	}
	s.reports[r.ID] = r
	count := len(s.reports)
	s.mu.Unlock()

	metrics.RecordStoreOperation("save", "ok")
	metrics.SetStoredReports(count)
	return nil
}

// Get returns the report stored under id.
func (s *MemoryStore) Get(ctx context.Context, id string) (analysis.Report, error) {
	if err := ctx.Err(); err != nil {
		metrics.RecordStoreOperation("get", "error")
		return analysis.Report{}, err
	}

	s.mu.RLock()
	r, ok := s.reports[id]
	s.mu.RUnlock()

	if !ok {
		metrics.RecordStoreOperation("get", "miss")
		return analysis.Report{}, ErrNotFound
	}
	metrics.RecordStoreOperation("get", "ok")
	return r, nil
}

// Len reports how many reports are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
