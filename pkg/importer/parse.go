package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
	"github.com/ethpandaops/archivoor/pkg/decompose"
	"github.com/ethpandaops/archivoor/pkg/scanner"
	"github.com/ethpandaops/archivoor/pkg/sidecar"
)

// parsedTest is everything written for one test.
type parsedTest struct {
	campaignDate *time.Time
	test         archivestore.Test
	params       map[string]string
	results      []archivestore.TestResult
	logs         []archivestore.TestLog
	failures     []string
}

// parseTest reads the sidecars and the combined CSV of a test. Malformed
// sidecars are treated as absent; unreadable files and corrupt CSVs fail
// the test.
func (im *Importer) parseTest(
	ctx context.Context, sum *Summary, pt *pendingTest,
) (*parsedTest, error) {
	td := pt.dir

	out := &parsedTest{
		campaignDate: campaignDate(td),
		test: archivestore.Test{
			TestName: td.Name,
			TestPath: td.Path,
		},
	}

	for _, a := range td.Artefacts {
		if a.Type == scanner.TypeAnalyzerHTML {
			out.test.AnalyzerPath = a.Path

			break
		}
	}

	var status *sidecar.Status

	if a, ok := td.Find(scanner.RoleStatus); ok {
		err := im.openArtefact(ctx, a, func(r io.Reader) error {
			var err error

			status, err = sidecar.ReadStatus(r)

			return err
		})
		if err != nil {
			if !isMalformed(err) {
				return nil, err
			}

			im.ignoreSidecar(ctx, sum, a, err)
		}
	}

	if a, ok := td.Find(scanner.RoleParams); ok {
		err := im.openArtefact(ctx, a, func(r io.Reader) error {
			var err error

			out.params, err = sidecar.ReadParams(r)

			return err
		})
		if err != nil {
			if !isMalformed(err) {
				return nil, err
			}

			im.ignoreSidecar(ctx, sum, a, err)
		}
	}

	var dec *decompose.Decomposition

	if a, ok := td.Find(scanner.RoleCombined); ok {
		err := im.openArtefact(ctx, a, func(r io.Reader) error {
			var err error

			dec, err = im.decomposer.Decompose(r)

			return err
		})
		if err != nil {
			return nil, fmt.Errorf("decomposing %s: %w", a.Name, err)
		}

		if dec.SkippedRows > 0 {
			sum.RowsSkipped += dec.SkippedRows

			im.audit(ctx, sum.RunID, archivestore.LevelWarning, actionRowsSkipped, a.Path,
				fmt.Sprintf("%d of %d rows skipped", dec.SkippedRows, dec.Rows))
		}
	} else {
		dec = &decompose.Decomposition{}
	}

	out.test.Status = testStatus(status, dec)

	if status != nil {
		out.test.StartTime = status.StartTime
		out.test.StartTimestamp = status.StartTimestamp
		out.test.Docstring = status.Docstring
	}

	if out.test.Docstring == "" {
		out.test.Docstring = dec.Docstring
	}

	out.results = make([]archivestore.TestResult, 0, len(dec.Results))
	for _, r := range dec.Results {
		out.results = append(out.results, archivestore.TestResult{
			RowIndex:           r.RowIndex,
			Timestamp:          r.Timestamp.Raw,
			TimestampFormatted: r.Timestamp.Formatted,
			Pass:               r.Pass,
			CommandMethod:      r.CommandMethod,
			CommandStr:         r.CommandStr,
			RawResponse:        r.RawResponse,
			PeakFrequency:      r.PeakFrequency,
			PeakAmplitude:      r.PeakAmplitude,
			FailureMessages:    r.FailureMessages,
			FullDataJSON:       r.Snapshot,
		})
	}

	out.logs = make([]archivestore.TestLog, 0, len(dec.Logs))
	for _, l := range dec.Logs {
		out.logs = append(out.logs, archivestore.TestLog{
			RowIndex:           l.RowIndex,
			Timestamp:          l.Timestamp.Raw,
			TimestampFormatted: l.Timestamp.Formatted,
			Level:              l.Level,
			Message:            l.Message,
			LogType:            l.LogType,
			LineNumber:         l.LineNumber,
			FullDataJSON:       l.Snapshot,
		})
	}

	out.failures = dec.Failures

	return out, nil
}

func (im *Importer) ignoreSidecar(
	ctx context.Context, sum *Summary, a scanner.ArtefactInfo, err error,
) {
	sum.SidecarsIgnored++

	im.log.WithError(err).
		WithField("path", a.Path).
		Warn("Ignoring malformed sidecar")

	im.audit(ctx, sum.RunID, archivestore.LevelWarning, actionSidecarIgnored,
		a.Path, err.Error())
}

// testStatus prefers the status sidecar and otherwise derives the status
// from the result rows.
func testStatus(st *sidecar.Status, dec *decompose.Decomposition) string {
	if st != nil && st.Status != "" {
		return st.Status
	}

	switch {
	case dec.HasFailures():
		return sidecar.StatusFailed
	case dec.HasPasses():
		return sidecar.StatusPassed
	default:
		return sidecar.StatusUnknown
	}
}

// campaignDate reads the date stamp in the campaign name and falls back to
// the directory modification time.
func campaignDate(td scanner.TestDir) *time.Time {
	if t, ok := scanner.ParseCampaignDate(td.CampaignName); ok {
		return &t
	}

	if !td.CampaignModTime.IsZero() {
		t := td.CampaignModTime

		return &t
	}

	return nil
}

// writeTest stores a parsed test and marks its artefacts processed in one
// transaction.
func (im *Importer) writeTest(
	ctx context.Context,
	pt *pendingTest,
	parsed *parsedTest,
	artefacts []hashedArtefact,
) error {
	return im.store.Transaction(ctx, func(tx archivestore.Writer) error {
		campaignID, err := tx.UpsertCampaign(ctx, pt.dir.CampaignName, parsed.campaignDate)
		if err != nil {
			return err
		}

		test := parsed.test
		test.CampaignID = campaignID

		testID, err := tx.UpsertTest(ctx, &test)
		if err != nil {
			return err
		}

		parsed.test.ID = testID

		if err := tx.ReplaceTestParams(ctx, testID, parsed.params); err != nil {
			return err
		}

		if err := tx.ReplaceTestResults(ctx, testID, parsed.results); err != nil {
			return err
		}

		if err := tx.ReplaceTestLogs(ctx, testID, parsed.logs); err != nil {
			return err
		}

		if err := tx.ReplaceTestFailures(ctx, testID, parsed.failures); err != nil {
			return err
		}

		for _, ha := range artefacts {
			id, err := tx.RecordArtefact(ctx, newArtefact(ha, &testID))
			if err != nil {
				return err
			}

			if err := tx.MarkProcessed(ctx, id); err != nil {
				return err
			}
		}

		return nil
	})
}
