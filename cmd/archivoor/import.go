package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/archivoor/pkg/hasher"
	"github.com/ethpandaops/archivoor/pkg/importer"
	"github.com/ethpandaops/archivoor/pkg/source"
)

var (
	importDBPath      string
	importFull        bool
	importSummaryOnly bool
	importJSON        bool
	importWatch       bool
	importInterval    string
)

var importCmd = &cobra.Command{
	Use:   "import [root_dir]",
	Short: "Import test output into the archive",
	Long: `Scan <root_dir>/<campaign>/<test>/ for test artefacts and import every new or
changed test. Unchanged tests are skipped unless --full is given. Tests that
fail to import are reported and retried on the next run; they do not fail
the command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importDBPath, "db", "",
		"SQLite database path (overrides the database config)")
	importCmd.Flags().BoolVar(&importFull, "full", false,
		"Reparse every test, ignoring recorded hashes")
	importCmd.Flags().BoolVar(&importSummaryOnly, "summary", false,
		"Print database statistics without importing")
	importCmd.Flags().BoolVar(&importJSON, "json", false,
		"Print the run summary as JSON")
	importCmd.Flags().BoolVar(&importWatch, "watch", false,
		"Keep running and import again every --interval")
	importCmd.Flags().StringVar(&importInterval, "interval", "",
		"Interval between imports in watch mode (overrides import.interval)")
}

func runImport(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.Import.RootDir = args[0]
	}

	if importDBPath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLite.Path = importDBPath
	}

	if cmd.Flags().Changed("full") {
		cfg.Import.Full = importFull
	}

	if importInterval != "" {
		cfg.Import.Interval = importInterval
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if importSummaryOnly {
		return printStats(ctx)
	}

	// The source is checked before the store so a bad root leaves no
	// database behind.
	reader, err := source.New(&cfg.Import)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}

	h, err := hasher.New(cfg.Import.Hash.Algorithm)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}

	defer stopStore(st)

	im := importer.New(log, st, reader, h, cfg.Import.Hash.Concurrency)

	if importWatch {
		return watch(ctx, im)
	}

	sum, err := im.Run(ctx, cfg.Import.Full)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if importJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(sum)
	}

	if err := sum.Write(os.Stdout); err != nil {
		return err
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading statistics: %w", err)
	}

	return importer.WriteStats(os.Stdout, stats)
}

// printStats prints the archive statistics without importing.
func printStats(ctx context.Context) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}

	defer stopStore(st)

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading statistics: %w", err)
	}

	return importer.WriteStats(os.Stdout, stats)
}

// watch runs incremental imports until ctx is cancelled.
func watch(ctx context.Context, im *importer.Importer) error {
	interval, err := cfg.Import.ScheduleInterval()
	if err != nil {
		return err
	}

	if interval == 0 {
		return fmt.Errorf("watch mode requires --interval or import.interval")
	}

	sched := importer.NewScheduler(log, im, interval)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting import scheduler: %w", err)
	}

	<-ctx.Done()

	if err := sched.Stop(); err != nil {
		return err
	}

	if sum := sched.LastSummary(); sum != nil {
		return sum.Write(os.Stdout)
	}

	return nil
}
