package port

import (
	"context"
	"io"
)

// FileStore abstracts upload storage. Paths are store-relative and are
// what repositories persist alongside records.
type FileStore interface {
	// Save writes the stream under dir with the given filename and
	// returns the stored relative path.
	Save(ctx context.Context, dir, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, relPath string) error
	RemoveDir(ctx context.Context, relDir string) error
	// List returns the bare file names directly under relDir; a
	// missing directory lists as empty.
	List(ctx context.Context, relDir string) ([]string, error)
}
