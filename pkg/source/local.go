package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	root string
}

// NewLocalReader creates a Reader backed by a local directory. It fails
// when root does not exist or is not a directory.
func NewLocalReader(root string) (Reader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root directory %s: %w", abs, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	return &localReader{root: abs}, nil
}

func (r *localReader) Root() string {
	return r.root
}

func (r *localReader) ListCampaigns(_ context.Context) ([]Entry, error) {
	return r.listDirs(r.root)
}

func (r *localReader) ListTests(
	_ context.Context, campaign Entry,
) ([]Entry, error) {
	return r.listDirs(campaign.Path)
}

// ListFiles returns the regular files in {test.Path}. Subdirectories and
// symlinks are ignored.
func (r *localReader) ListFiles(
	_ context.Context, test Entry,
) ([]Entry, error) {
	entries, err := os.ReadDir(test.Path)
	if err != nil {
		return nil, fmt.Errorf("reading test directory %s: %w", test.Path, err)
	}

	files := make([]Entry, 0, len(entries))

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}

		files = append(files, Entry{
			Name:    e.Name(),
			Path:    filepath.Join(test.Path, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sortEntries(files)

	return files, nil
}

func (r *localReader) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from ListFiles
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	return f, nil
}

func (r *localReader) listDirs(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	dirs := make([]Entry, 0, len(entries))

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		entry := Entry{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
		}

		if info, err := e.Info(); err == nil {
			entry.ModTime = info.ModTime()
		}

		dirs = append(dirs, entry)
	}

	sortEntries(dirs)

	return dirs, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}
