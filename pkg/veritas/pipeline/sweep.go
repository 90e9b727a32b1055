package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/cognicore/veritas/internal/logger"
	"github.com/cognicore/veritas/internal/telemetry"
	"github.com/cognicore/veritas/pkg/veritas/evaluate"
	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/store"
)

// Metric names used in sweep cells.
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
)

var metricNames = []string{MetricAccuracy, MetricPrecision, MetricRecall, MetricF1}

// SweepResult aggregates trials over a grid of known-label percentages and
// neighbour counts.
type SweepResult struct {
	Method      string
	Percentages []float64
	Neighbors   []int
	Trials      int
	Cells       []store.Cell
}

// Record converts the result into a storable sweep stamped with now.
func (r *SweepResult) Record(now time.Time) store.Sweep {
	cells := append([]store.Cell(nil), r.Cells...)
	store.SortCells(cells)
	return store.Sweep{
		ID:          store.NewID(now),
		Method:      r.Method,
		CreatedAt:   now,
		Percentages: append([]float64(nil), r.Percentages...),
		Neighbors:   append([]int(nil), r.Neighbors...),
		Trials:      r.Trials,
		Cells:       cells,
	}
}

// UnknownCount is the number of held-out nodes when percentage% of n are
// known: n - floor(percentage/100 * n).
func UnknownCount(percentage float64, n int) int {
	return n - int(math.Floor(percentage/100*float64(n)))
}

// Sweep runs trial_count trials for every known-label percentage. Each trial
// starts from a fresh copy of the truth, shuffles the nodes, holds out
// UnknownCount of them and solves once per neighbour count. Any error aborts
// the sweep.
func (p *Pipeline) Sweep(ctx context.Context, ds *Dataset) (*SweepResult, error) {
	percentages := p.cfg.Sweep.KnownPercentages
	neighbors := p.cfg.Sweep.Neighbors
	trials := p.cfg.TrialCount
	if len(percentages) == 0 || len(neighbors) == 0 {
		return nil, fmt.Errorf("sweep: empty grid: %w", internalerr.ErrConfiguration)
	}
	if trials <= 0 {
		return nil, fmt.Errorf("sweep: trial_count %d: %w", trials, internalerr.ErrConfiguration)
	}
	defer p.telemetry.StartStage(telemetry.StageSweep)()

	method := ds.Method
	if method == "" {
		method = p.method()
	}
	ctx = logger.WithFields(ctx, p.logger, zap.String("method", method))
	log := logger.FromContext(ctx, nil)

	n := len(ds.Nodes)
	result := &SweepResult{
		Method:      method,
		Percentages: append([]float64(nil), percentages...),
		Neighbors:   append([]int(nil), neighbors...),
		Trials:      trials,
	}

	for _, pct := range percentages {
		unknown := UnknownCount(pct, n)
		if unknown == 0 {
			log.Warn("no held-out nodes at this percentage; metrics will be zero",
				zap.Float64("percentage", pct))
		}

		// samples[k index][metric index] collects one value per trial.
		samples := make([][][]float64, len(neighbors))
		for ki := range samples {
			samples[ki] = make([][]float64, len(metricNames))
		}

		for trial := 0; trial < trials; trial++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			nodes := make([]Node, n)
			copy(nodes, ds.Nodes)
			Shuffle(p.rng, nodes)
			nodes, err := HoldOut(nodes, unknown)
			if err != nil {
				return nil, err
			}

			trialCtx := logger.WithFields(ctx, nil,
				zap.Float64("percentage", pct),
				zap.Int("trial", trial))
			for ki, k := range neighbors {
				res, err := p.RunTrial(trialCtx, nodes, k)
				if err != nil {
					return nil, fmt.Errorf("sweep %g%% trial %d k=%d: %w", pct, trial, k, err)
				}
				for mi, v := range metricValues(res.Scores) {
					samples[ki][mi] = append(samples[ki][mi], v)
				}
			}
		}

		for ki, k := range neighbors {
			for mi, name := range metricNames {
				mean, std := stat.PopMeanStdDev(samples[ki][mi], nil)
				result.Cells = append(result.Cells, store.Cell{
					Percentage: pct,
					Neighbors:  k,
					Metric:     name,
					Mean:       mean,
					Std:        std,
				})
			}
		}

		if acc, ok := result.cell(pct, neighbors[0], MetricAccuracy); ok {
			log.Info("sweep percentage done",
				zap.Float64("percentage", pct),
				zap.Int("held_out", unknown),
				zap.Int("k", neighbors[0]),
				zap.Float64("accuracy_mean", acc.Mean))
		}
	}
	return result, nil
}

func (r *SweepResult) cell(pct float64, k int, metric string) (store.Cell, bool) {
	return store.Sweep{Cells: r.Cells}.Cell(pct, k, metric)
}

func metricValues(s evaluate.Scores) []float64 {
	return []float64{s.Accuracy, s.Precision, s.Recall, s.F1}
}
