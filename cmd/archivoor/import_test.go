package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImport_MissingRootCreatesNoDatabase(t *testing.T) {
	log = logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "archive.db")

	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"import", "--db", dbPath, filepath.Join(dir, "missing")})

	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening source")

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "database file must not be created")
}
