// Command veritas infers fake/real labels for news articles from a handful of
// known labels, using tensor-decomposition embeddings and belief propagation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "veritas"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	logLevel    string
	metricsFile string
	jsonlPath   string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Semi-supervised fake news detection",
		Long: `Veritas builds a per-article word co-occurrence tensor, embeds articles
with a CP decomposition, links them in a k-nearest-neighbour graph and
propagates the known labels with linearized belief propagation (FaBP).`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "veritas.yaml", "Config file path (YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	pf.StringVar(&flags.jsonlPath, "jsonl", "", "Read articles from a JSONL file instead of the dataset directory")

	cmd.AddCommand(
		runCmd(&flags),
		sweepCmd(&flags),
		historyCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}
