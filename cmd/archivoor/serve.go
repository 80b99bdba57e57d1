package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/archivoor/pkg/api"
	"github.com/ethpandaops/archivoor/pkg/archivestore"
	"github.com/ethpandaops/archivoor/pkg/hasher"
	"github.com/ethpandaops/archivoor/pkg/importer"
	"github.com/ethpandaops/archivoor/pkg/source"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only archive API",
	Long: `Serve campaigns, tests, decomposed rows, failure aggregates and exports from
the archive over HTTP. Artefact content is streamed from the configured import
source when it is reachable.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"Listen address (overrides api.listen)")
}

func runServe(_ *cobra.Command, _ []string) error {
	if serveListen != "" {
		cfg.API.Listen = serveListen
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := openStore(ctx)
	if err != nil {
		return err
	}

	defer stopStore(st)

	// Artefact content is optional; the archive stays browsable without
	// the source tree.
	var reader source.Reader

	if err := cfg.Import.Validate(); err != nil {
		log.WithError(err).Warn("Import source misconfigured, artefact content disabled")
	} else if reader, err = source.New(&cfg.Import); err != nil {
		log.WithError(err).Warn("Import source unavailable, artefact content disabled")
	}

	srv := api.NewServer(log, &cfg.API, st, reader)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Periodic imports share the store, keeping a single writer.
	sched, err := newScheduler(st, reader)
	if err != nil {
		_ = srv.Stop()

		return err
	}

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			_ = srv.Stop()

			return fmt.Errorf("starting import scheduler: %w", err)
		}

		defer func() {
			if err := sched.Stop(); err != nil {
				log.WithError(err).Warn("Import scheduler stop error")
			}
		}()
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down API server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}

// newScheduler returns the periodic importer configured by import.interval,
// or nil when periodic imports are disabled.
func newScheduler(
	st archivestore.Store, reader source.Reader,
) (importer.Scheduler, error) {
	interval, err := cfg.Import.ScheduleInterval()
	if err != nil || interval == 0 {
		return nil, err
	}

	if reader == nil {
		return nil, fmt.Errorf("import.interval is set but the import source is unavailable")
	}

	h, err := hasher.New(cfg.Import.Hash.Algorithm)
	if err != nil {
		return nil, err
	}

	im := importer.New(log, st, reader, h, cfg.Import.Hash.Concurrency)

	return importer.NewScheduler(log, im, interval), nil
}
