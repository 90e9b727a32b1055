package store

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sink persists statistics sweeps.
type Sink interface {
	Close() error

	RecordSweep(ctx context.Context, s Sweep) error
	// Sweep returns internalerr.ErrNotFound for an unknown id.
	Sweep(ctx context.Context, id string) (Sweep, error)
	// Sweeps lists the most recent sweeps first.
	Sweeps(ctx context.Context, limit int) ([]Sweep, error)
}

// Sweep is the aggregated outcome of a grid of trials.
type Sweep struct {
	ID          string
	Method      string
	CreatedAt   time.Time
	Percentages []float64
	Neighbors   []int
	Trials      int
	Cells       []Cell
}

// Cell is the population mean and standard deviation of one metric at one
// grid point.
type Cell struct {
	Percentage float64
	Neighbors  int
	Metric     string
	Mean       float64
	Std        float64
}

// Cell looks up a single grid cell.
func (s Sweep) Cell(percentage float64, neighbors int, metric string) (Cell, bool) {
	for _, c := range s.Cells {
		if c.Percentage == percentage && c.Neighbors == neighbors && c.Metric == metric {
			return c, true
		}
	}
	return Cell{}, false
}

// SortCells orders cells by percentage, then neighbors, then metric name.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Percentage != b.Percentage {
			return a.Percentage < b.Percentage
		}
		if a.Neighbors != b.Neighbors {
			return a.Neighbors < b.Neighbors
		}
		return a.Metric < b.Metric
	})
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID for t. IDs from one process sort in creation order.
func NewID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), idEntropy).String()
}
