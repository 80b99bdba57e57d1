package importer

import (
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
)

// FailedTest is a test that could not be imported in a run.
type FailedTest struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary reports the outcome of one import run.
type Summary struct {
	RunID    string        `json:"run_id"`
	Root     string        `json:"root"`
	Full     bool          `json:"full"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	ArtefactsScanned    int   `json:"artefacts_scanned"`
	ArtefactsHashed     int   `json:"artefacts_hashed"`
	ArtefactsUnreadable int   `json:"artefacts_unreadable"`
	BytesHashed         int64 `json:"bytes_hashed"`

	TestsImported int `json:"tests_imported"`
	TestsSkipped  int `json:"tests_skipped"`
	TestsFailed   int `json:"tests_failed"`

	ResultsWritten  int `json:"results_written"`
	LogsWritten     int `json:"logs_written"`
	RowsSkipped     int `json:"rows_skipped"`
	SidecarsIgnored int `json:"sidecars_ignored"`

	Failed []FailedTest `json:"failed,omitempty"`
}

func (s *Summary) fail(path string, err error) {
	s.TestsFailed++
	s.Failed = append(s.Failed, FailedTest{Path: path, Error: err.Error()})
}

// Write prints a human readable run report.
func (s *Summary) Write(w io.Writer) error {
	mode := "incremental"
	if s.Full {
		mode = "full"
	}

	lines := []string{
		fmt.Sprintf("Import %s (%s) of %s", s.RunID, mode, s.Root),
		fmt.Sprintf("  Duration:          %s", s.Duration.Round(time.Millisecond)),
		fmt.Sprintf("  Artefacts scanned: %d", s.ArtefactsScanned),
		fmt.Sprintf("  Artefacts hashed:  %d (%s)", s.ArtefactsHashed,
			units.HumanSize(float64(s.BytesHashed))),
		fmt.Sprintf("  Unreadable files:  %d", s.ArtefactsUnreadable),
		fmt.Sprintf("  Tests imported:    %d", s.TestsImported),
		fmt.Sprintf("  Tests unchanged:   %d", s.TestsSkipped),
		fmt.Sprintf("  Tests failed:      %d", s.TestsFailed),
		fmt.Sprintf("  Result rows:       %d", s.ResultsWritten),
		fmt.Sprintf("  Log rows:          %d", s.LogsWritten),
		fmt.Sprintf("  Rows skipped:      %d", s.RowsSkipped),
		fmt.Sprintf("  Sidecars ignored:  %d", s.SidecarsIgnored),
	}

	for _, f := range s.Failed {
		lines = append(lines, fmt.Sprintf("    FAILED %s: %s", f.Path, f.Error))
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}

	return nil
}

// WriteStats prints database totals.
func WriteStats(w io.Writer, st *archivestore.Stats) error {
	_, err := fmt.Fprintf(w,
		"Database summary\n"+
			"  Campaigns:  %d\n"+
			"  Tests:      %d (passed %d, failed %d, unknown %d, pass rate %.1f%%)\n"+
			"  Results:    %d\n"+
			"  Logs:       %d\n"+
			"  Failures:   %d\n"+
			"  Artefacts:  %d (%d processed)\n",
		st.Campaigns,
		st.Tests, st.TestsPassed, st.TestsFailed, st.TestsUnknown, st.PassRate(),
		st.Results,
		st.Logs,
		st.Failures,
		st.Artefacts, st.ArtefactsProcessed,
	)

	return err
}
