// Package telemetry records run metrics in a private Prometheus registry.
// Batch runs have no scrape endpoint, so the registry is dumped to a
// node-exporter textfile at the end of a run.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage names.
const (
	StageLoad      = "load"
	StageTensor    = "tensor"
	StageDecompose = "decompose"
	StageEmbed     = "embed"
	StageGraph     = "graph"
	StageSolve     = "solve"
	StageSweep     = "sweep"
)

// Recorder holds the run metrics. A nil *Recorder discards everything.
type Recorder struct {
	reg           *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	trialsTotal   *prometheus.CounterVec
	accuracy      prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "veritas",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		trialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veritas",
			Name:      "trials_total",
			Help:      "Label inference trials by outcome",
		}, []string{"status"}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "veritas",
			Name:      "heldout_accuracy",
			Help:      "Accuracy on held-out nodes of the most recent trial",
		}),
	}
	r.reg.MustRegister(r.stageDuration, r.trialsTotal, r.accuracy)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// StartStage starts timing stage and returns the function that stops it.
func (r *Recorder) StartStage(stage string) func() {
	if r == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(r.stageDuration.WithLabelValues(stage))
	return func() { timer.ObserveDuration() }
}

// TrialFinished counts a trial as ok or error.
func (r *Recorder) TrialFinished(err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.trialsTotal.WithLabelValues(status).Inc()
}

// SetAccuracy records the held-out accuracy of the latest trial.
func (r *Recorder) SetAccuracy(v float64) {
	if r == nil {
		return
	}
	r.accuracy.Set(v)
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
