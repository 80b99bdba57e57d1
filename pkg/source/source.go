package source

import (
	"context"
	"io"
	"time"
)

// Entry is a directory or file discovered in a source backend.
type Entry struct {
	// Name is the last path element (directory or file name).
	Name string
	// Path locates the entry within the backend and is accepted by
	// Reader.Open. For local sources it is an absolute filesystem path,
	// for S3 it is an s3://bucket/key URL.
	Path    string
	Size    int64
	ModTime time.Time
}

// Reader provides read access to test output laid out as
// <root>/<campaign>/<test>/<files>. It is used by the scanner to discover
// artefacts without knowing the underlying storage details.
type Reader interface {
	// Root returns the location the reader was opened on.
	Root() string

	// ListCampaigns returns the directories directly below the root,
	// sorted by name.
	ListCampaigns(ctx context.Context) ([]Entry, error)

	// ListTests returns the directories directly below a campaign,
	// sorted by name.
	ListTests(ctx context.Context, campaign Entry) ([]Entry, error)

	// ListFiles returns the regular files directly inside a test
	// directory, sorted by name.
	ListFiles(ctx context.Context, test Entry) ([]Entry, error)

	// Open returns the content of a file previously returned by ListFiles.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
