package source_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/archivoor/pkg/source"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewLocalReader(t *testing.T) {
	t.Parallel()

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()

		_, err := source.NewLocalReader(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})

	t.Run("root is a file", func(t *testing.T) {
		t.Parallel()

		p := filepath.Join(t.TempDir(), "file.txt")
		writeFile(t, p, "x")

		_, err := source.NewLocalReader(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("root is resolved to an absolute path", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		r, err := source.NewLocalReader(dir)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(r.Root()))
	})
}

func TestLocalReader_Listing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "camp_b", "modA__t1", "t1_combined.csv"), "a")
	writeFile(t, filepath.Join(root, "camp_b", "modA__t1", "t1_status.json"), "{}")
	writeFile(t, filepath.Join(root, "camp_a", "test_x", "x_combined.csv"), "b")
	writeFile(t, filepath.Join(root, "camp_a", "test_w", "w_params.json"), "{}")
	// Stray files at the campaign and root level are not directories.
	writeFile(t, filepath.Join(root, "README.md"), "readme")
	writeFile(t, filepath.Join(root, "camp_a", "report.json"), "{}")
	// Nested directories inside a test are not files.
	require.NoError(t, os.MkdirAll(
		filepath.Join(root, "camp_b", "modA__t1", "screens"), 0o755,
	))

	r, err := source.NewLocalReader(root)
	require.NoError(t, err)

	campaigns, err := r.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "camp_a", campaigns[0].Name)
	assert.Equal(t, "camp_b", campaigns[1].Name)
	assert.False(t, campaigns[0].ModTime.IsZero())

	tests, err := r.ListTests(ctx, campaigns[0])
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "test_w", tests[0].Name)
	assert.Equal(t, "test_x", tests[1].Name)

	tests, err = r.ListTests(ctx, campaigns[1])
	require.NoError(t, err)
	require.Len(t, tests, 1)

	files, err := r.ListFiles(ctx, tests[0])
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "t1_combined.csv", files[0].Name)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, "t1_status.json", files[1].Name)

	rc, err := r.Open(ctx, files[0].Path)
	require.NoError(t, err)

	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestLocalReader_OpenMissing(t *testing.T) {
	t.Parallel()

	r, err := source.NewLocalReader(t.TempDir())
	require.NoError(t, err)

	_, err = r.Open(context.Background(), filepath.Join(r.Root(), "gone.csv"))
	require.Error(t, err)
}
