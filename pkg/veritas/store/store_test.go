package store

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewIDMonotonic(t *testing.T) {
	now := time.Now()
	prev := NewID(now)
	for i := 0; i < 100; i++ {
		id := NewID(now)
		if id <= prev {
			t.Fatalf("id %s not after %s", id, prev)
		}
		prev = id
	}

	parsed, err := ulid.Parse(prev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Time() != ulid.Timestamp(now) {
		t.Errorf("timestamp = %d, want %d", parsed.Time(), ulid.Timestamp(now))
	}
}

func TestSortCellsAndLookup(t *testing.T) {
	s := Sweep{Cells: []Cell{
		{Percentage: 50, Neighbors: 1, Metric: "f1", Mean: 0.4},
		{Percentage: 10, Neighbors: 2, Metric: "accuracy", Mean: 0.3},
		{Percentage: 10, Neighbors: 1, Metric: "recall", Mean: 0.2},
		{Percentage: 10, Neighbors: 1, Metric: "accuracy", Mean: 0.1},
	}}
	SortCells(s.Cells)

	want := []float64{0.1, 0.2, 0.3, 0.4}
	for i, c := range s.Cells {
		if c.Mean != want[i] {
			t.Errorf("cell %d mean = %v, want %v", i, c.Mean, want[i])
		}
	}

	if c, ok := s.Cell(10, 2, "accuracy"); !ok || c.Mean != 0.3 {
		t.Errorf("lookup = %+v, %v", c, ok)
	}
	if _, ok := s.Cell(10, 3, "accuracy"); ok {
		t.Error("missing cell should not be found")
	}
}
