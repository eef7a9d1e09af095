package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wikirag/internal/ingest"
	"wikirag/internal/logger"
)

var ingestWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Synchronise the index with the source folder",
	Long: `Walks the source folder once. Unchanged files are skipped, new or
modified files are converted, embedded and written to their collection.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Synchronise once, then follow changes to the source folder",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, watchCmd} {
		c.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "files processed in parallel (default from config)")
		rootCmd.AddCommand(c)
	}
}

func workers() int {
	if ingestWorkers > 0 {
		return ingestWorkers
	}
	return cfg.Ingest.Workers
}

func runIngest(cmd *cobra.Command, _ []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()
	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("prepare collections: %w", err)
	}

	logger.Section("ingest " + a.Config.Source.Root)
	sum, err := a.Controller.Run(ctx, a.Source(), workers())
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printSummary(cmd, sum)
	if sum.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", sum.Failed)
	}
	return nil
}

func runWatch(_ *cobra.Command, _ []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()
	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("prepare collections: %w", err)
	}
	debounce := time.Duration(a.Config.Ingest.WatchDebounceMS) * time.Millisecond
	return ingest.NewWatcher(a.Controller, a.Source(), workers(), debounce).Run(ctx)
}

func printSummary(cmd *cobra.Command, s ingest.Summary) {
	cmd.Printf("Ingested: %d  Skipped: %d  Unrouted: %d  Failed: %d  Passages: %d  (%s)\n",
		s.Ingested, s.Skipped, s.Unrouted, s.Failed, s.Chunks, s.Duration.Round(time.Millisecond))
	for _, f := range s.Failures {
		cmd.Printf("  failed: %s: %v\n", f.Path, f.Err)
	}
}
