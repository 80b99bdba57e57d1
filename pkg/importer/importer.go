// Package importer drives the scan, hash, filter, parse and write pipeline
// that absorbs test output into the archive store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
	"github.com/ethpandaops/archivoor/pkg/decompose"
	"github.com/ethpandaops/archivoor/pkg/hasher"
	"github.com/ethpandaops/archivoor/pkg/scanner"
	"github.com/ethpandaops/archivoor/pkg/sidecar"
	"github.com/ethpandaops/archivoor/pkg/source"
)

// defaultConcurrency is the number of files hashed in parallel when no
// explicit value is configured.
const defaultConcurrency = 4

// Processing log actions.
const (
	actionRunStarted     = "run_started"
	actionRunFinished    = "run_finished"
	actionScanFailed     = "scan_failed"
	actionHashFailed     = "hash_failed"
	actionSidecarIgnored = "sidecar_ignored"
	actionRowsSkipped    = "rows_skipped"
	actionTestFailed     = "test_failed"
)

// Importer imports test output from a source into the archive store.
type Importer struct {
	log         logrus.FieldLogger
	store       archivestore.Store
	reader      source.Reader
	scanner     *scanner.Scanner
	hasher      hasher.Hasher
	decomposer  *decompose.Decomposer
	concurrency int
}

// New creates an Importer. concurrency bounds the parallel hashing stage;
// all store writes happen on the calling goroutine.
func New(
	log logrus.FieldLogger,
	store archivestore.Store,
	reader source.Reader,
	h hasher.Hasher,
	concurrency int,
) *Importer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Importer{
		log:         log.WithField("component", "importer"),
		store:       store,
		reader:      reader,
		scanner:     scanner.New(log, reader),
		hasher:      h,
		decomposer:  decompose.New(log),
		concurrency: concurrency,
	}
}

// hashedArtefact is an artefact with the outcome of hashing it.
type hashedArtefact struct {
	info scanner.ArtefactInfo
	hash string
	size int64
	err  error
}

// pendingTest is a scanned test directory with its hashed artefacts.
type pendingTest struct {
	dir       scanner.TestDir
	artefacts []hashedArtefact
}

// Run performs one import pass. In full mode every test is reparsed;
// otherwise tests whose artefacts are all unchanged are skipped. Per-test
// failures are counted in the summary and never abort the run. The
// returned error is non-nil only when the pass could not run at all or
// ctx was cancelled.
func (im *Importer) Run(ctx context.Context, full bool) (*Summary, error) {
	sum := &Summary{
		RunID:   uuid.NewString(),
		Root:    im.reader.Root(),
		Full:    full,
		Started: time.Now(),
	}

	runLog := im.log.WithField("run_id", sum.RunID)

	runLog.WithFields(logrus.Fields{
		"root": sum.Root,
		"full": full,
	}).Info("Import started")

	im.audit(ctx, sum.RunID, archivestore.LevelInfo, actionRunStarted,
		sum.Root, fmt.Sprintf("full=%t hash=%s", full, im.hasher.Algorithm()))

	tests, err := im.scan(ctx, sum)
	if err != nil {
		return sum, err
	}

	if err := im.hashAll(ctx, tests, sum); err != nil {
		return sum, err
	}

	for i := range tests {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		im.processTest(ctx, sum, &tests[i], full)
	}

	sum.Duration = time.Since(sum.Started)

	im.audit(ctx, sum.RunID, archivestore.LevelInfo, actionRunFinished,
		sum.Root, fmt.Sprintf("imported=%d skipped=%d failed=%d",
			sum.TestsImported, sum.TestsSkipped, sum.TestsFailed))

	runLog.WithFields(logrus.Fields{
		"imported": sum.TestsImported,
		"skipped":  sum.TestsSkipped,
		"failed":   sum.TestsFailed,
		"duration": sum.Duration.Round(time.Millisecond),
	}).Info("Import completed")

	return sum, nil
}

// scan collects every test directory. Listing failures below the root are
// recorded and skipped.
func (im *Importer) scan(
	ctx context.Context, sum *Summary,
) ([]pendingTest, error) {
	var tests []pendingTest

	for td, err := range im.scanner.Tests(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			// The root itself could not be listed.
			if td.CampaignName == "" {
				return nil, err
			}

			im.log.WithError(err).
				WithField("campaign", td.CampaignName).
				Warn("Failed to scan directory")

			if td.Path != "" {
				sum.fail(td.Path, err)
			}

			im.audit(ctx, sum.RunID, archivestore.LevelError, actionScanFailed,
				td.Path, err.Error())

			continue
		}

		if len(td.Artefacts) == 0 {
			im.log.WithField("test", td.Path).
				Debug("No artefacts in test directory")

			continue
		}

		sum.ArtefactsScanned += len(td.Artefacts)

		pt := pendingTest{
			dir:       td,
			artefacts: make([]hashedArtefact, len(td.Artefacts)),
		}

		for i, a := range td.Artefacts {
			pt.artefacts[i].info = a
		}

		tests = append(tests, pt)
	}

	return tests, nil
}

// hashAll hashes every artefact with bounded parallelism. Unreadable
// files are kept with their error; they do not stop the stage.
func (im *Importer) hashAll(
	ctx context.Context, tests []pendingTest, sum *Summary,
) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	for ti := range tests {
		for ai := range tests[ti].artefacts {
			ha := &tests[ti].artefacts[ai]

			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}

				ha.hash, ha.size, ha.err = im.hashFile(gCtx, ha.info.Path)

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("hashing artefacts: %w", err)
	}

	for ti := range tests {
		for _, ha := range tests[ti].artefacts {
			if ha.err != nil {
				sum.ArtefactsUnreadable++

				im.log.WithError(ha.err).
					WithField("path", ha.info.Path).
					Warn("Failed to hash artefact")

				im.audit(ctx, sum.RunID, archivestore.LevelWarning,
					actionHashFailed, ha.info.Path, ha.err.Error())

				continue
			}

			sum.ArtefactsHashed++
			sum.BytesHashed += ha.size
		}
	}

	return nil
}

func (im *Importer) hashFile(
	ctx context.Context, path string,
) (string, int64, error) {
	rc, err := im.reader.Open(ctx, path)
	if err != nil {
		return "", 0, err
	}

	defer func() { _ = rc.Close() }()

	return im.hasher.SumReader(ctx, rc)
}

// processTest filters, parses and writes one test. Every outcome is
// reflected in sum.
func (im *Importer) processTest(
	ctx context.Context, sum *Summary, pt *pendingTest, full bool,
) {
	testLog := im.log.WithFields(logrus.Fields{
		"campaign": pt.dir.CampaignName,
		"test":     pt.dir.Path,
	})

	// A data artefact that cannot be read fails the test; unreadable
	// reference files are only left out.
	var usable []hashedArtefact

	for _, ha := range pt.artefacts {
		if ha.err == nil {
			usable = append(usable, ha)

			continue
		}

		if ha.info.Parsed() {
			im.failTest(ctx, sum, pt, testLog,
				fmt.Errorf("reading %s: %w", ha.info.Name, ha.err))

			return
		}
	}

	if !full {
		unchanged, err := im.allUnchanged(ctx, usable)
		if err != nil {
			im.failTest(ctx, sum, pt, testLog, err)

			return
		}

		if unchanged {
			sum.TestsSkipped++

			testLog.Debug("Test unchanged, skipping")

			return
		}
	}

	parsed, err := im.parseTest(ctx, sum, pt)
	if err != nil {
		im.failTest(ctx, sum, pt, testLog, err)

		return
	}

	if err := im.writeTest(ctx, pt, parsed, usable); err != nil {
		im.failTest(ctx, sum, pt, testLog, err)
		im.recordPending(ctx, usable, testLog)

		return
	}

	sum.TestsImported++
	sum.ResultsWritten += len(parsed.results)
	sum.LogsWritten += len(parsed.logs)

	testLog.WithFields(logrus.Fields{
		"status":  parsed.test.Status,
		"results": len(parsed.results),
		"logs":    len(parsed.logs),
	}).Info("Imported test")
}

func (im *Importer) allUnchanged(
	ctx context.Context, artefacts []hashedArtefact,
) (bool, error) {
	for _, ha := range artefacts {
		unchanged, err := im.store.IsUnchanged(ctx, ha.info.Path, ha.hash)
		if err != nil {
			return false, err
		}

		if !unchanged {
			return false, nil
		}
	}

	return true, nil
}

// recordPending stores the current hashes of a test's artefacts as
// unprocessed so the next run retries them.
func (im *Importer) recordPending(
	ctx context.Context, artefacts []hashedArtefact, log logrus.FieldLogger,
) {
	for _, ha := range artefacts {
		if _, err := im.store.RecordArtefact(ctx, newArtefact(ha, nil)); err != nil {
			log.WithError(err).
				WithField("path", ha.info.Path).
				Warn("Failed to record pending artefact")
		}
	}
}

func (im *Importer) failTest(
	ctx context.Context,
	sum *Summary,
	pt *pendingTest,
	log logrus.FieldLogger,
	err error,
) {
	sum.fail(pt.dir.Path, err)

	log.WithError(err).Error("Failed to import test")

	im.audit(ctx, sum.RunID, archivestore.LevelError, actionTestFailed,
		pt.dir.Path, err.Error())
}

// audit appends to the processing log. Failures are logged only; the
// audit trail never fails an import.
func (im *Importer) audit(
	ctx context.Context, runID, level, action, path, message string,
) {
	if err := im.store.AppendProcessingLog(ctx, &archivestore.ProcessingLog{
		RunID:   runID,
		Level:   level,
		Action:  action,
		Path:    path,
		Message: message,
	}); err != nil {
		im.log.WithError(err).
			WithField("action", action).
			Warn("Failed to write processing log")
	}
}

// openArtefact opens an artefact and runs fn over its content.
func (im *Importer) openArtefact(
	ctx context.Context, a scanner.ArtefactInfo, fn func(r io.Reader) error,
) error {
	rc, err := im.reader.Open(ctx, a.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", a.Name, err)
	}

	defer func() { _ = rc.Close() }()

	return fn(rc)
}

func newArtefact(ha hashedArtefact, testID *uint) *archivestore.Artefact {
	return &archivestore.Artefact{
		TestID:       testID,
		ArtefactType: string(ha.info.Type),
		FilePath:     ha.info.Path,
		FileHash:     ha.hash,
		FileSize:     ha.size,
	}
}

// isMalformed reports whether err is a sidecar content problem rather
// than an I/O failure.
func isMalformed(err error) bool {
	return errors.Is(err, sidecar.ErrMalformed)
}
