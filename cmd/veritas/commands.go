package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/veritas/pkg/veritas/pipeline"
	"github.com/cognicore/veritas/pkg/veritas/store"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runReport is the JSON printed by `veritas run`.
type runReport struct {
	Method    string  `json:"method"`
	K         int     `json:"k"`
	HeldOut   int     `json:"held_out"`
	TP        int     `json:"tp"`
	TN        int     `json:"tn"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	A         float64 `json:"a"`
	C         float64 `json:"c"`
	Edges     int     `json:"edges"`
	Fit       float64 `json:"decomposition_fit"`
	Converged bool    `json:"decomposition_converged"`
}

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single label inference trial",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()
			ctx = a.attach(ctx)

			ds, err := a.prepare(ctx)
			if err != nil {
				return err
			}
			res, err := a.pipe.Run(ctx, ds)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), runReport{
				Method:    ds.Method,
				K:         res.K,
				HeldOut:   res.Confusion.Total(),
				TP:        res.Confusion.TP,
				TN:        res.Confusion.TN,
				FP:        res.Confusion.FP,
				FN:        res.Confusion.FN,
				Accuracy:  res.Scores.Accuracy,
				Precision: res.Scores.Precision,
				Recall:    res.Scores.Recall,
				F1:        res.Scores.F1,
				A:         res.Coefficients.A,
				C:         res.Coefficients.C,
				Edges:     res.Edges,
				Fit:       ds.Factors.Fit,
				Converged: ds.Factors.Converged,
			})
		},
	}
}

func sweepCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Sweep known-label percentages and neighbour counts, then store the statistics",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()
			ctx = a.attach(ctx)

			sink, err := openSink(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer sink.Close()

			ds, err := a.prepare(ctx)
			if err != nil {
				return err
			}
			res, err := a.pipe.Sweep(ctx, ds)
			if err != nil {
				return err
			}

			sw := res.Record(time.Now())
			if err := sink.RecordSweep(ctx, sw); err != nil {
				return fmt.Errorf("store sweep: %w", err)
			}
			a.logger.Info("stored sweep", zap.String("id", sw.ID), zap.String("driver", a.cfg.Store.Driver))

			return writeSweep(cmd.OutOrStdout(), sw, pipeline.MetricAccuracy)
		},
	}
}

func historyCmd(flags *globalFlags) *cobra.Command {
	var limit int
	var metric string

	cmd := &cobra.Command{
		Use:   "history [sweep-id]",
		Short: "Show stored sweeps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()
			ctx = a.attach(ctx)

			sink, err := openSink(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer sink.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				sw, err := sink.Sweep(ctx, args[0])
				if err != nil {
					return err
				}
				return writeSweep(out, sw, metric)
			}

			sweeps, err := sink.Sweeps(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMETHOD\tTRIALS\tCELLS")
			for _, sw := range sweeps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
					sw.ID, sw.CreatedAt.Format(time.RFC3339), sw.Method, sw.Trials, len(sw.Cells))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of sweeps to list")
	cmd.Flags().StringVar(&metric, "metric", pipeline.MetricAccuracy, "Metric to tabulate (accuracy, precision, recall, f1)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSweep prints one metric as a percentage × neighbours grid of
// "mean ± std" cells.
func writeSweep(w io.Writer, sw store.Sweep, metric string) error {
	fmt.Fprintf(w, "sweep %s (%s, %d trials) %s\n", sw.ID, sw.Method, sw.Trials, metric)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "known%\t")
	for _, k := range sw.Neighbors {
		fmt.Fprintf(tw, "k=%d\t", k)
	}
	fmt.Fprintln(tw)
	for _, p := range sw.Percentages {
		fmt.Fprintf(tw, "%g\t", p)
		for _, k := range sw.Neighbors {
			if c, ok := sw.Cell(p, k, metric); ok {
				fmt.Fprintf(tw, "%.3f±%.3f\t", c.Mean, c.Std)
			} else {
				fmt.Fprint(tw, "-\t")
			}
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
