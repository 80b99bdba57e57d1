// Package sidecar reads the JSON metadata files stored next to a test's
// combined CSV.
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ethpandaops/archivoor/pkg/decompose"
)

// ErrMalformed is returned for sidecar content that is not a JSON object.
var ErrMalformed = errors.New("malformed sidecar json")

// Normalised test statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusUnknown = "unknown"
)

// NormalizeStatus maps harness status strings onto passed, failed or
// unknown.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "ok", "success":
		return StatusPassed
	case "fail", "failed", "error":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Status is the content of a _status.json file.
type Status struct {
	// Status is normalised; empty when the file carries none.
	Status    string
	RawStatus string
	// StartTime is the start time as written in the file.
	StartTime string
	// StartTimestamp is StartTime in epoch milliseconds, when parseable.
	StartTimestamp *int64
	Docstring      string
	// Extra holds every other top-level key.
	Extra map[string]any
}

type statusFile struct {
	Status      string         `mapstructure:"status"`
	StartTime   string         `mapstructure:"start_time"`
	Docstring   string         `mapstructure:"docstring"`
	Description string         `mapstructure:"description"`
	Extra       map[string]any `mapstructure:",remain"`
}

// ReadStatus decodes a status sidecar. Scalar fields are read weakly, so a
// numeric start_time is accepted as an epoch value.
func ReadStatus(r io.Reader) (*Status, error) {
	raw, err := readObject(r)
	if err != nil {
		return nil, err
	}

	var sf statusFile

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &sf,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	st := &Status{
		RawStatus: strings.TrimSpace(sf.Status),
		StartTime: strings.TrimSpace(sf.StartTime),
		Docstring: strings.TrimSpace(sf.Docstring),
		Extra:     sf.Extra,
	}

	if st.RawStatus != "" {
		st.Status = NormalizeStatus(st.RawStatus)
	}

	if st.Docstring == "" {
		st.Docstring = strings.TrimSpace(sf.Description)
	}

	if st.StartTime != "" {
		st.StartTimestamp = decompose.ParseTimestamp(st.StartTime).Millis
	}

	return st, nil
}

// ReadParams decodes a params sidecar. Both a flat object and an object
// wrapped as {"params": {...}} are accepted. Non-string values are kept
// as their JSON text and null becomes the empty string.
func ReadParams(r io.Reader) (map[string]string, error) {
	raw, err := readObject(r)
	if err != nil {
		return nil, err
	}

	if len(raw) == 1 {
		if inner, ok := raw["params"].(map[string]any); ok {
			raw = inner
		}
	}

	params := make(map[string]string, len(raw))

	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			params[k] = ""
		case string:
			params[k] = val
		case json.Number:
			params[k] = val.String()
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encoding param %q: %w", k, err)
			}

			params[k] = string(b)
		}
	}

	return params, nil
}

func readObject(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sidecar: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	return obj, nil
}
