package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/store"
)

// Store is an in-memory implementation of store.Sink for tests and
// throwaway runs.
type Store struct {
	mu     sync.RWMutex
	sweeps map[string]store.Sweep
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{sweeps: make(map[string]store.Sweep)}
}

// Close implements store.Sink.
func (s *Store) Close() error { return nil }

// RecordSweep stores a copy of sw, replacing any sweep with the same id.
func (s *Store) RecordSweep(ctx context.Context, sw store.Sweep) error {
	if sw.ID == "" {
		return fmt.Errorf("record sweep: empty id: %w", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweeps[sw.ID] = copySweep(sw)
	return nil
}

// Sweep implements store.Sink.
func (s *Store) Sweep(ctx context.Context, id string) (store.Sweep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sw, ok := s.sweeps[id]
	if !ok {
		return store.Sweep{}, fmt.Errorf("sweep %s: %w", id, internalerr.ErrNotFound)
	}
	return copySweep(sw), nil
}

// Sweeps implements store.Sink.
func (s *Store) Sweeps(ctx context.Context, limit int) ([]store.Sweep, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sweeps))
	for id := range s.sweeps {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]store.Sweep, len(ids))
	for i, id := range ids {
		out[i] = copySweep(s.sweeps[id])
	}
	return out, nil
}

func copySweep(sw store.Sweep) store.Sweep {
	cp := sw
	cp.CreatedAt = sw.CreatedAt.UTC()
	cp.Percentages = append([]float64(nil), sw.Percentages...)
	cp.Neighbors = append([]int(nil), sw.Neighbors...)
	cp.Cells = append([]store.Cell(nil), sw.Cells...)
	store.SortCells(cp.Cells)
	return cp
}
