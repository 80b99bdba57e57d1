package decompose

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the decomposed type of a combined CSV row.
type Kind int

const (
	KindResult Kind = iota
	KindLog
)

func (k Kind) String() string {
	if k == KindLog {
		return "log"
	}

	return "result"
}

// passColumns hold the row outcome, checked in order.
var passColumns = []string{"Pass", "pass", "outcome"}

// failureColumnRe selects columns whose values are failure text.
var failureColumnRe = regexp.MustCompile(`(?i)(fail|error)`)

// ResultRow is a measurement or outcome row.
type ResultRow struct {
	RowIndex        int
	Timestamp       Timestamp
	Pass            *bool
	CommandMethod   string
	CommandStr      string
	RawResponse     string
	PeakFrequency   *float64
	PeakAmplitude   *float64
	FailureMessages string
	Snapshot        string
}

// LogRow is a diagnostic log entry.
type LogRow struct {
	RowIndex   int
	Timestamp  Timestamp
	Level      string
	Message    string
	LogType    string
	LineNumber *int64
	Snapshot   string
}

// Classified holds exactly one of Result or Log, selected by Kind, and
// the source row.
type Classified struct {
	Kind   Kind
	Result *ResultRow
	Log    *LogRow
	Row    Row
}

// rule is one entry of the ordered classification table.
type rule struct {
	name  string
	match func(Row) bool
	kind  Kind
}

// rules are evaluated top to bottom; the first match wins. A row that
// carries both log fields and an outcome value is a result row.
var rules = []rule{
	{
		name: "log fields without outcome value",
		match: func(r Row) bool {
			return (r.Get("level") != "" || r.Get("message") != "") &&
				outcomeValue(r) == ""
		},
		kind: KindLog,
	},
	{
		name: "outcome column present",
		match: func(r Row) bool {
			_, ok := outcomeColumn(r)

			return ok
		},
		kind: KindResult,
	},
	{
		name:  "default",
		match: func(Row) bool { return true },
		kind:  KindResult,
	},
}

// Decide returns the kind of a row and the name of the rule that chose it.
func Decide(r Row) (Kind, string) {
	for _, rl := range rules {
		if rl.match(r) {
			return rl.kind, rl.name
		}
	}

	return KindResult, "default"
}

// Classify decides the kind of a row and extracts its promoted fields.
// The full row is always kept in the snapshot.
func Classify(index int, r Row) Classified {
	kind, _ := Decide(r)

	if kind == KindLog {
		return Classified{Kind: KindLog, Row: r, Log: &LogRow{
			RowIndex:   index,
			Timestamp:  timestampOf(r),
			Level:      r.Get("level"),
			Message:    r.Get("message"),
			LogType:    r.Get("log_type"),
			LineNumber: parseInt(r.Get("line_number")),
			Snapshot:   r.Snapshot(),
		}}
	}

	return Classified{Kind: KindResult, Row: r, Result: &ResultRow{
		RowIndex:        index,
		Timestamp:       timestampOf(r),
		Pass:            ParsePass(outcomeValue(r)),
		CommandMethod:   r.Get("command_method"),
		CommandStr:      r.Get("command_str"),
		RawResponse:     rawValue(r, "raw_response"),
		PeakFrequency:   parseFloat(r.Get("peak_frequency")),
		PeakAmplitude:   parseFloat(r.Get("peak_amplitude")),
		FailureMessages: failureText(r),
		Snapshot:        r.Snapshot(),
	}}
}

// ParsePass reads an outcome value case-insensitively. Empty or
// unrecognised values are nil.
func ParsePass(s string) *bool {
	var v bool

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "pass", "passed":
		v = true
	case "false", "fail", "failed":
		v = false
	default:
		return nil
	}

	return &v
}

func outcomeColumn(r Row) (string, bool) {
	for _, c := range passColumns {
		if _, ok := r.Lookup(c); ok {
			return c, true
		}
	}

	return "", false
}

func outcomeValue(r Row) string {
	return r.first(passColumns...)
}

// failureText joins the non-empty values of failure/error columns in
// file order.
func failureText(r Row) string {
	var parts []string

	for i, n := range r.header.Names() {
		if r.header.index[n] != i || !failureColumnRe.MatchString(n) {
			continue
		}

		if v := r.Get(n); v != "" {
			parts = append(parts, v)
		}
	}

	return strings.Join(parts, "; ")
}

// rawValue returns a column untrimmed; responses may carry significant
// whitespace.
func rawValue(r Row, column string) string {
	v, _ := r.Lookup(column)

	return v
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}

	return &f
}

func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}

	return &n
}
