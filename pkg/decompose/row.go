package decompose

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Header maps column names to their position in a CSV record. Names are
// trimmed; a duplicated name resolves to its last occurrence.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a Header from the first CSV record.
func NewHeader(names []string) *Header {
	h := &Header{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}

	for i, n := range names {
		n = strings.TrimSpace(n)
		if i == 0 {
			n = strings.TrimPrefix(n, "\ufeff")
		}

		h.names[i] = n
		h.index[n] = i
	}

	return h
}

// Names returns the column names in file order.
func (h *Header) Names() []string {
	return h.names
}

// Row is one CSV record addressed by column name.
type Row struct {
	header *Header
	values []string
}

// NewRow pairs a record with its header. values must have one entry per
// header column.
func NewRow(header *Header, values []string) Row {
	return Row{header: header, values: values}
}

// RowFromMap builds a Row with columns sorted by name.
func RowFromMap(m map[string]string) Row {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}

	sort.Strings(names)

	values := make([]string, len(names))
	for i, n := range names {
		values[i] = m[n]
	}

	return NewRow(NewHeader(names), values)
}

// Lookup returns the raw value of a column and whether the column exists.
func (r Row) Lookup(column string) (string, bool) {
	i, ok := r.header.index[column]
	if !ok || i >= len(r.values) {
		return "", false
	}

	return r.values[i], true
}

// Get returns the trimmed value of a column, or "" when absent.
func (r Row) Get(column string) string {
	v, _ := r.Lookup(column)

	return strings.TrimSpace(v)
}

// first returns the first non-empty trimmed value among columns.
func (r Row) first(columns ...string) string {
	for _, c := range columns {
		if v := r.Get(c); v != "" {
			return v
		}
	}

	return ""
}

// Map returns a copy of the row as a column/value map.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for i, n := range r.header.names {
		if i < len(r.values) {
			m[n] = r.values[i]
		}
	}

	return m
}

// Snapshot serializes every column, in file order, as a JSON object.
func (r Row) Snapshot() string {
	var buf bytes.Buffer

	buf.WriteByte('{')

	written := 0

	for i, n := range r.header.names {
		if i >= len(r.values) || r.header.index[n] != i {
			continue
		}

		if written > 0 {
			buf.WriteByte(',')
		}

		k, _ := json.Marshal(n)
		v, _ := json.Marshal(r.values[i])

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)

		written++
	}

	buf.WriteByte('}')

	return buf.String()
}
