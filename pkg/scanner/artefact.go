package scanner

import (
	"path"
	"regexp"
	"strings"
	"time"
)

// ArtefactType is the stored type of a tracked input file.
type ArtefactType string

const (
	TypeCSV          ArtefactType = "csv"
	TypeJSON         ArtefactType = "json"
	TypeAnalyzerHTML ArtefactType = "analyzer_html"
	TypeLog          ArtefactType = "log"
	TypeScreenshot   ArtefactType = "screenshot"
)

// Role tells the importer what to do with an artefact.
type Role string

const (
	// RoleCombined is the combined results/logs CSV.
	RoleCombined Role = "combined"
	// RoleParams is the flat key/value parameter sidecar.
	RoleParams Role = "params"
	// RoleStatus is the status/metadata sidecar.
	RoleStatus Role = "status"
	// RoleReference artefacts are tracked by path only and never parsed.
	RoleReference Role = "reference"
)

// ArtefactInfo describes one discovered artefact file.
type ArtefactInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Type    ArtefactType
	Role    Role

	CampaignName string
	// TestName is derived from TestDir, see TestNameFromDir.
	TestName string
	TestDir  string
	// TestPath is "<campaign>/<test_dir>", relative to the scan root.
	TestPath string
}

// Parsed reports whether the artefact content feeds the database rather
// than being kept as a reference only.
func (a ArtefactInfo) Parsed() bool {
	return a.Role != RoleReference
}

// Classify infers the artefact type and role from a file name. Files
// that match no convention return ok=false and are not tracked.
func Classify(name string) (ArtefactType, Role, bool) {
	lower := strings.ToLower(name)

	switch {
	case strings.HasSuffix(name, "_combined.csv"):
		return TypeCSV, RoleCombined, true
	case strings.HasSuffix(name, "_params.json"):
		return TypeJSON, RoleParams, true
	case strings.HasSuffix(name, "_status.json"):
		return TypeJSON, RoleStatus, true
	case strings.HasSuffix(name, "_analyzer.html"):
		return TypeAnalyzerHTML, RoleReference, true
	case strings.HasSuffix(lower, ".log"):
		return TypeLog, RoleReference, true
	}

	switch path.Ext(lower) {
	case ".png", ".jpg", ".jpeg":
		return TypeScreenshot, RoleReference, true
	}

	return "", "", false
}

// testNameRe captures everything after the first "__" that is followed by
// a non-underscore, e.g. "test_modA__read_id" -> "read_id".
var testNameRe = regexp.MustCompile(`__([^_].+)$`)

// TestNameFromDir derives the test name from a test directory name.
func TestNameFromDir(dir string) string {
	if m := testNameRe.FindStringSubmatch(dir); m != nil {
		return m[1]
	}

	if name, ok := strings.CutPrefix(dir, "test_"); ok && name != "" {
		return name
	}

	return dir
}

// campaignDateRe matches the DDMMYY_HHMMSS stamp in campaign names.
var campaignDateRe = regexp.MustCompile(`(\d{6})_(\d{6})`)

// ParseCampaignDate extracts the DDMMYY_HHMMSS timestamp embedded in a
// campaign directory name, e.g. "camp1_010124_100000" -> 2024-01-01
// 10:00:00. Invalid calendar values are rejected.
func ParseCampaignDate(name string) (time.Time, bool) {
	m := campaignDateRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation("020106150405", m[1]+m[2], time.Local)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}
