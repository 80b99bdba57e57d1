package scanner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/archivoor/pkg/source"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func touch(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		wantType ArtefactType
		wantRole Role
		wantOK   bool
	}{
		{"test1_combined.csv", TypeCSV, RoleCombined, true},
		{"test1_params.json", TypeJSON, RoleParams, true},
		{"test1_status.json", TypeJSON, RoleStatus, true},
		{"test1_analyzer.html", TypeAnalyzerHTML, RoleReference, true},
		{"capture.png", TypeScreenshot, RoleReference, true},
		{"capture.JPG", TypeScreenshot, RoleReference, true},
		{"capture.jpeg", TypeScreenshot, RoleReference, true},
		{"journal.log", TypeLog, RoleReference, true},
		{"test1_results.csv", "", "", false},
		{"report.json", "", "", false},
		{"notes.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, role, ok := Classify(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestTestNameFromDir(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"modA__test1", "test1"},
		{"test_modA__read_id", "read_id"},
		{"test_power_on", "power_on"},
		{"plain", "plain"},
		{"test_", "test_"},
		{"a__b__c", "b__c"},
		{"mod___xy", "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			assert.Equal(t, tt.want, TestNameFromDir(tt.dir))
		})
	}
}

func TestParseCampaignDate(t *testing.T) {
	got, ok := ParseCampaignDate("camp1_010124_100000")
	require.True(t, ok)
	assert.True(t,
		time.Date(2024, time.January, 1, 10, 0, 0, 0, time.Local).Equal(got))

	got, ok = ParseCampaignDate("regression_311225_235959_rerun")
	require.True(t, ok)
	assert.True(t,
		time.Date(2025, time.December, 31, 23, 59, 59, 0, time.Local).Equal(got))

	_, ok = ParseCampaignDate("nightly")
	assert.False(t, ok)

	// Month 13 is not a date.
	_, ok = ParseCampaignDate("camp_011324_100000")
	assert.False(t, ok)
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "camp1_010124_100000", "modA__test1", "test1_combined.csv"))
	touch(t, filepath.Join(root, "camp1_010124_100000", "modA__test1", "test1_status.json"))
	touch(t, filepath.Join(root, "camp1_010124_100000", "modA__test1", "test1_analyzer.html"))
	touch(t, filepath.Join(root, "camp1_010124_100000", "modA__test1", "notes.txt"))
	touch(t, filepath.Join(root, "camp1_010124_100000", "test_modB__test2", "test2_params.json"))
	// Three levels deep is outside the convention.
	touch(t, filepath.Join(root, "camp1_010124_100000", "modA__test1", "nested", "x_combined.csv"))
	// Root-level and campaign-level files are ignored.
	touch(t, filepath.Join(root, "stray_combined.csv"))
	touch(t, filepath.Join(root, "camp1_010124_100000", "report.json"))

	reader, err := source.NewLocalReader(root)
	require.NoError(t, err)

	s := New(testLogger(), reader)

	var got []ArtefactInfo

	for a, err := range s.Scan(context.Background()) {
		require.NoError(t, err)

		got = append(got, a)
	}

	require.Len(t, got, 4)

	assert.Equal(t, "test1_analyzer.html", got[0].Name)
	assert.Equal(t, TypeAnalyzerHTML, got[0].Type)
	assert.False(t, got[0].Parsed())

	assert.Equal(t, "test1_combined.csv", got[1].Name)
	assert.Equal(t, TypeCSV, got[1].Type)
	assert.True(t, got[1].Parsed())
	assert.Equal(t, "camp1_010124_100000", got[1].CampaignName)
	assert.Equal(t, "test1", got[1].TestName)
	assert.Equal(t, "modA__test1", got[1].TestDir)
	assert.Equal(t, "camp1_010124_100000/modA__test1", got[1].TestPath)
	assert.Equal(t, filepath.Join(reader.Root(),
		"camp1_010124_100000", "modA__test1", "test1_combined.csv"), got[1].Path)

	assert.Equal(t, RoleStatus, got[2].Role)

	assert.Equal(t, RoleParams, got[3].Role)
	assert.Equal(t, "test2", got[3].TestName)
}

func TestScanner_TestsIsRestartable(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "c1", "t1", "t1_combined.csv"))
	touch(t, filepath.Join(root, "c1", "t2", "t2_combined.csv"))
	touch(t, filepath.Join(root, "c2", "t3", "t3_combined.csv"))

	reader, err := source.NewLocalReader(root)
	require.NoError(t, err)

	s := New(testLogger(), reader)
	seq := s.Tests(context.Background())

	// Stop after the first test.
	var first []string

	for td, err := range seq {
		require.NoError(t, err)

		first = append(first, td.Path)

		break
	}

	assert.Equal(t, []string{"c1/t1"}, first)

	// A fresh iteration starts from the beginning.
	var all []string

	for td, err := range seq {
		require.NoError(t, err)

		all = append(all, td.Path)
	}

	assert.Equal(t, []string{"c1/t1", "c1/t2", "c2/t3"}, all)
}

func TestTestDir_Find(t *testing.T) {
	td := TestDir{Artefacts: []ArtefactInfo{
		{Name: "a_status.json", Role: RoleStatus},
		{Name: "a_combined.csv", Role: RoleCombined},
	}}

	a, ok := td.Find(RoleCombined)
	require.True(t, ok)
	assert.Equal(t, "a_combined.csv", a.Name)

	_, ok = td.Find(RoleParams)
	assert.False(t, ok)
}

// failingReader fails to list files for one test directory.
type failingReader struct {
	source.Reader
	failTest string
}

func (r *failingReader) ListFiles(
	ctx context.Context, test source.Entry,
) ([]source.Entry, error) {
	if test.Name == r.failTest {
		return nil, errors.New("permission denied")
	}

	return r.Reader.ListFiles(ctx, test)
}

func TestScanner_ListFailureContinues(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "c1", "bad", "bad_combined.csv"))
	touch(t, filepath.Join(root, "c1", "good", "good_combined.csv"))

	local, err := source.NewLocalReader(root)
	require.NoError(t, err)

	s := New(testLogger(), &failingReader{Reader: local, failTest: "bad"})

	var (
		paths []string
		errs  int
	)

	for td, err := range s.Tests(context.Background()) {
		if err != nil {
			errs++

			assert.Equal(t, "c1/bad", td.Path)
			assert.Contains(t, err.Error(), "permission denied")

			continue
		}

		paths = append(paths, td.Path)
	}

	assert.Equal(t, 1, errs)
	assert.Equal(t, []string{"c1/good"}, paths)
}
