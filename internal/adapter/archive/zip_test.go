package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "dump.sql")
	outputPath := filepath.Join(dir, "dump.zip")

	content := "CREATE TABLE students (id INTEGER PRIMARY KEY);\n"
	if err := os.WriteFile(inputPath, []byte(content), 0o640); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	archiver := NewZipArchiver()
	if err := archiver.Compress(inputPath, outputPath, "dump.sql"); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	r, err := zip.OpenReader(outputPath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer r.Close()

	if len(r.File) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(r.File))
	}
	if r.File[0].Name != "dump.sql" {
		t.Errorf("expected entry name 'dump.sql', got %q", r.File[0].Name)
	}
	if r.File[0].Method != zip.Deflate {
		t.Errorf("expected deflate compression, got method %d", r.File[0].Method)
	}

	rc, err := r.File[0].Open()
	if err != nil {
		t.Fatalf("failed to open entry: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read entry: %v", err)
	}
	if string(data) != content {
		t.Errorf("entry content mismatch: got %q", string(data))
	}
}

func TestCompressMissingInput(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "dump.zip")

	archiver := NewZipArchiver()
	err := archiver.Compress(filepath.Join(dir, "does-not-exist.sql"), outputPath, "dump.sql")
	if err == nil {
		t.Fatal("expected error for missing input")
	}

	if _, statErr := os.Stat(outputPath); !os.IsNotExist(statErr) {
		t.Error("no archive should be left behind on failure")
	}
}

func TestCompressEmptyInput(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "empty.sql")
	outputPath := filepath.Join(dir, "empty.zip")

	if err := os.WriteFile(inputPath, nil, 0o640); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	// An empty dump still produces a valid archive with one empty entry; it
	// is the caller's job to decide whether an empty dump is acceptable.
	archiver := NewZipArchiver()
	if err := archiver.Compress(inputPath, outputPath, "empty.sql"); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("failed to stat archive: %v", err)
	}
	if info.Size() == 0 {
		t.Error("archive should contain zip headers even for an empty entry")
	}
}
