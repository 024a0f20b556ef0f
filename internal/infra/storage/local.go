package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/port"
)

// LocalStore persists uploads under a single root directory on the
// local filesystem. Stored paths are relative to the root so the root
// can move between environments without rewriting records.
type LocalStore struct {
	root string
	log  *zap.Logger
}

// NewLocalStore creates the upload root if needed.
func NewLocalStore(root string, log *zap.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &LocalStore{root: abs, log: log}, nil
}

// Root returns the absolute upload root.
func (s *LocalStore) Root() string {
	return s.root
}

// Save writes the stream under dir with the given filename and returns
// the stored relative path. Path segments are sanitized so uploads
// cannot escape the root.
func (s *LocalStore) Save(ctx context.Context, dir, filename string, r io.Reader) (string, error) {
	rel := filepath.Join(cleanSegment(dir), sanitizeFilename(filename))
	target, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("write upload: %w", err)
	}

	return filepath.ToSlash(rel), nil
}

// Remove deletes a stored file; a missing file is not an error.
func (s *LocalStore) Remove(ctx context.Context, relPath string) error {
	target, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// RemoveDir deletes a stored directory tree; a missing directory is not an error.
func (s *LocalStore) RemoveDir(ctx context.Context, relDir string) error {
	target, err := s.resolve(relDir)
	if err != nil {
		return err
	}
	if target == s.root {
		return fmt.Errorf("refusing to remove upload root")
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove upload dir: %w", err)
	}
	return nil
}

// List returns the names of files directly under relDir. A missing
// directory lists as empty.
func (s *LocalStore) List(ctx context.Context, relDir string) ([]string, error) {
	target, err := s.resolve(relDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list upload dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

func (s *LocalStore) resolve(rel string) (string, error) {
	target := filepath.Join(s.root, filepath.FromSlash(rel))
	cleaned := filepath.Clean(target)
	if cleaned != s.root && !strings.HasPrefix(cleaned, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes upload root", rel)
	}
	return cleaned, nil
}

func cleanSegment(dir string) string {
	dir = filepath.Clean(filepath.FromSlash(dir))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return strings.TrimPrefix(dir, string(filepath.Separator))
}

// sanitizeFilename keeps the base name only and replaces characters
// that are unsafe on common filesystems.
func sanitizeFilename(name string) string {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "upload"
	}
	replacer := strings.NewReplacer("..", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(base)
}

var _ port.FileStore = (*LocalStore)(nil)
