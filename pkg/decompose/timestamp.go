package decompose

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates epoch seconds from epoch milliseconds. 1e11
// seconds is in the year 5138, 1e11 milliseconds is March 1973.
const millisThreshold = 1e11

// FormattedLayout is used to render numeric timestamps.
const FormattedLayout = "2006-01-02 15:04:05.000"

// timestampColumns are checked in order for a row timestamp.
var timestampColumns = []string{"timestamp", "Timestamp", "Timestamp_original"}

// timestampLayouts are tried in order for non-numeric timestamps. Values
// without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05,999",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
}

// Timestamp keeps both forms of a row timestamp.
type Timestamp struct {
	// Raw is the integer as written in the file. Fractional values are
	// truncated, date strings leave it nil.
	Raw *int64
	// Millis is the value normalised to epoch milliseconds.
	Millis *int64
	// Formatted is the original text for date strings, otherwise a UTC
	// rendering of Millis.
	Formatted string
}

// ParseTimestamp reads an epoch integer (seconds or milliseconds), a
// fractional epoch, or a date string. Unparseable text is kept in
// Formatted with nil numeric fields.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		ms := n
		if math.Abs(float64(n)) < millisThreshold {
			ms = n * 1000
		}

		return Timestamp{Raw: &n, Millis: &ms, Formatted: formatMillis(ms)}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil &&
		!math.IsNaN(f) && !math.IsInf(f, 0) {
		// Outside the int64 range the value only survives as text.
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return Timestamp{Formatted: s}
		}

		raw := int64(f)

		ms := raw
		if math.Abs(f) < millisThreshold {
			ms = int64(math.Round(f * 1000))
		}

		return Timestamp{Raw: &raw, Millis: &ms, Formatted: formatMillis(ms)}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			ms := t.UnixMilli()

			return Timestamp{Millis: &ms, Formatted: s}
		}
	}

	return Timestamp{Formatted: s}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(FormattedLayout)
}

func timestampOf(r Row) Timestamp {
	return ParseTimestamp(r.first(timestampColumns...))
}
