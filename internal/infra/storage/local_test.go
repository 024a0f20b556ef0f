package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}
	return store
}

func TestLocalStoreSaveAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rel, err := store.Save(ctx, "patients/1", "photo.jpg", strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if rel != "patients/1/photo.jpg" {
		t.Fatalf("stored path = %q", rel)
	}

	data, err := os.ReadFile(filepath.Join(store.Root(), "patients", "1", "photo.jpg"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("stored content = %q", data)
	}

	files, err := store.List(ctx, "patients/1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(files) != 1 || files[0] != "photo.jpg" {
		t.Fatalf("unexpected listing: %v", files)
	}
}

func TestLocalStoreRejectsEscapingPaths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "../outside", "f.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for path escaping the root")
	}

	// A traversal filename is flattened to its base name inside the root.
	rel, err := store.Save(ctx, "seq", "../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if strings.Contains(rel, "..") {
		t.Fatalf("sanitized path still contains traversal: %q", rel)
	}
}

func TestLocalStoreRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rel, err := store.Save(ctx, "sequences/patient_1/t1", "slice001.dcm", strings.NewReader("dicom"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := store.Remove(ctx, rel); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	// Removing again is a no-op.
	if err := store.Remove(ctx, rel); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}

	if _, err := store.Save(ctx, "sequences/patient_1/t1", "slice002.dcm", strings.NewReader("dicom")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.RemoveDir(ctx, "sequences/patient_1/t1"); err != nil {
		t.Fatalf("RemoveDir returned error: %v", err)
	}

	files, err := store.List(ctx, "sequences/patient_1/t1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty listing after RemoveDir, got %v", files)
	}
}

func TestLocalStoreRefusesToRemoveRoot(t *testing.T) {
	store := newTestStore(t)

	if err := store.RemoveDir(context.Background(), "."); err == nil {
		t.Fatal("expected error when removing upload root")
	}
}
