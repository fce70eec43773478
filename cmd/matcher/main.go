package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	dryRun       bool
	pollInterval time.Duration

	rootCmd = &cobra.Command{
		Use:   "matcher",
		Short: "Round-based mentor matching service",
		Long: `matcher collects swipes between sponsors and applicants over a series of rounds
and assigns them with a capacity-aware deferred-acceptance run after the last round.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the round scheduler",
		RunE:  runServe,
	}

	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Process due round boundaries once and exit",
		RunE:  runTick,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "compute round changes and matches but roll every transaction back")
	serveCmd.Flags().DurationVar(&pollInterval, "interval", 0, "poll for due boundaries at this interval instead of POLL_SPEC")

	rootCmd.AddCommand(serveCmd, tickCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
