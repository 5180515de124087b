package resource

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSourceReadRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", src.Size())
	}

	dst := make([]byte, 100)
	if err := src.ReadRange(dst, 500); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst, content[500:600]) {
		t.Error("ReadRange returned wrong bytes")
	}

	// A range past EOF is a short read and must error, not silently
	// return partial data.
	if err := src.ReadRange(make([]byte, 100), 4050); err == nil {
		t.Error("ReadRange past EOF did not error")
	}
}

func TestOpenSourceMissing(t *testing.T) {
	if _, err := OpenSource(filepath.Join(t.TempDir(), "absent.stl")); err == nil {
		t.Error("expected error for missing file")
	}
}
