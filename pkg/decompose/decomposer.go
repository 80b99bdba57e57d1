package decompose

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// ErrCorruptCSV is returned when a combined CSV cannot be read past a
// structural error, e.g. a file truncated inside a quoted field or part
// way through its last row.
var ErrCorruptCSV = errors.New("corrupt csv")

// MalformedRowError describes a row that was skipped.
type MalformedRowError struct {
	RowIndex int
	Line     int
	Reason   string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("row %d (line %d): %s", e.RowIndex, e.Line, e.Reason)
}

// Decomposition is the content of one combined CSV.
type Decomposition struct {
	Results  []ResultRow
	Logs     []LogRow
	Failures []string
	// Docstring is the first data row's docstring column.
	Docstring   string
	Rows        int
	SkippedRows int
}

// HasFailures reports whether any result row failed.
func (d *Decomposition) HasFailures() bool {
	for _, r := range d.Results {
		if r.Pass != nil && !*r.Pass {
			return true
		}
	}

	return false
}

// HasPasses reports whether any result row passed.
func (d *Decomposition) HasPasses() bool {
	for _, r := range d.Results {
		if r.Pass != nil && *r.Pass {
			return true
		}
	}

	return false
}

// Decomposer splits combined CSV files into result and log rows.
type Decomposer struct {
	log logrus.FieldLogger
}

// New creates a Decomposer.
func New(log logrus.FieldLogger) *Decomposer {
	return &Decomposer{log: log.WithField("component", "decompose")}
}

// Decompose reads a combined CSV to the end. Malformed rows are skipped
// and counted; a structural error that prevents reading further returns
// an error wrapping ErrCorruptCSV. An empty input is not an error.
func (d *Decomposer) Decompose(r io.Reader) (*Decomposition, error) {
	out := &Decomposition{}
	seen := make(map[string]struct{})

	for c, err := range Stream(r) {
		if err != nil {
			var mre *MalformedRowError
			if errors.As(err, &mre) {
				out.Rows++
				out.SkippedRows++

				d.log.WithError(err).Debug("Skipping malformed row")

				continue
			}

			return nil, err
		}

		if out.Rows == 0 {
			out.Docstring = c.Row.Get("docstring")
		}

		out.Rows++

		switch c.Kind {
		case KindLog:
			out.Logs = append(out.Logs, *c.Log)
		case KindResult:
			out.Results = append(out.Results, *c.Result)

			if msg := c.Result.FailureMessages; msg != "" {
				if _, ok := seen[msg]; !ok {
					seen[msg] = struct{}{}
					out.Failures = append(out.Failures, msg)
				}
			}
		}
	}

	if out.SkippedRows > 0 {
		d.log.WithFields(logrus.Fields{
			"rows":    out.Rows,
			"skipped": out.SkippedRows,
		}).Warn("Skipped malformed CSV rows")
	}

	return out, nil
}

// Stream lazily classifies the rows of a combined CSV. Skipped rows are
// yielded as *MalformedRowError and iteration continues; any other error
// ends the sequence.
//
// A record the reader cannot finish because the input ended, either inside
// a quoted field or part way through a row with no line terminator, makes
// the file corrupt rather than the row malformed.
func Stream(r io.Reader) iter.Seq2[Classified, error] {
	return func(yield func(Classified, error) bool) {
		tr := &tailReader{r: r}
		rr := &recordReader{cr: csv.NewReader(tr)}
		// The header fixes the column count for every row.
		rr.cr.FieldsPerRecord = 0

		names, err := rr.read()
		if errors.Is(err, io.EOF) {
			return
		}

		if err != nil {
			yield(Classified{}, fmt.Errorf("%w: reading header: %w", ErrCorruptCSV, err))

			return
		}

		header := NewHeader(names)

		for index := 0; ; index++ {
			record, err := rr.read()
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				reason, ok := rowError(err, len(names), len(record))
				if !ok {
					yield(Classified{}, fmt.Errorf("%w: row %d: %w", ErrCorruptCSV, index, err))

					return
				}

				if rr.atEOF() && truncated(err, tr, len(names), len(record)) {
					yield(Classified{}, fmt.Errorf("%w: row %d: truncated: %w",
						ErrCorruptCSV, index, err))

					return
				}

				if !yield(Classified{}, &MalformedRowError{
					RowIndex: index,
					Line:     errLine(err),
					Reason:   reason,
				}) {
					return
				}

				continue
			}

			if !validUTF8(record) {
				line, _ := rr.cr.FieldPos(0)

				if !yield(Classified{}, &MalformedRowError{
					RowIndex: index,
					Line:     line,
					Reason:   "invalid utf-8",
				}) {
					return
				}

				continue
			}

			if !yield(Classify(index, NewRow(header, record)), nil) {
				return
			}
		}
	}
}

// rowError reports whether err only affects the current record, and why.
// The reader discards the rest of the offending line and carries on with
// the next one for these errors.
func rowError(err error, want, got int) (string, bool) {
	switch {
	case errors.Is(err, csv.ErrFieldCount):
		return fmt.Sprintf("expected %d fields, got %d", want, got), true
	case errors.Is(err, csv.ErrBareQuote):
		return "bare quote in unquoted field", true
	case errors.Is(err, csv.ErrQuote):
		return "stray quote in quoted field", true
	default:
		return "", false
	}
}

// truncated reports whether the failed final record was cut off by the end
// of the input.
func truncated(err error, tr *tailReader, want, got int) bool {
	if errors.Is(err, csv.ErrQuote) {
		return true
	}

	if errors.Is(err, csv.ErrFieldCount) {
		return got < want && tr.last != '\n' && tr.last != '\r'
	}

	return false
}

// recordReader wraps csv.Reader with a single record of lookahead.
type recordReader struct {
	cr      *csv.Reader
	peeked  bool
	record  []string
	peekErr error
}

func (rr *recordReader) read() ([]string, error) {
	if rr.peeked {
		rr.peeked = false

		return rr.record, rr.peekErr
	}

	return rr.cr.Read()
}

// atEOF reports whether no records remain after the current one.
func (rr *recordReader) atEOF() bool {
	if !rr.peeked {
		rr.record, rr.peekErr = rr.cr.Read()
		rr.peeked = true
	}

	return errors.Is(rr.peekErr, io.EOF)
}

// tailReader remembers the last byte handed to the csv reader.
type tailReader struct {
	r    io.Reader
	last byte
}

func (t *tailReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.last = p[n-1]
	}

	return n, err
}

func validUTF8(record []string) bool {
	for _, f := range record {
		if !utf8.ValidString(f) {
			return false
		}
	}

	return true
}

func errLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}

	return 0
}
