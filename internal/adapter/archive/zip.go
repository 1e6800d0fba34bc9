package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// Archiver compresses a dump file into a single-entry archive.
type Archiver interface {
	Compress(inputPath, outputPath, entryName string) error
}

// ZipArchiver writes standard zip archives with one deflate-compressed entry,
// so downstream size and checksum reasoning stays simple.
type ZipArchiver struct{}

func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{}
}

// Compress writes the input file into a fresh zip archive at outputPath. Any
// read, write, or close error fails the whole operation; a truncated archive
// is never left behind as a success.
func (a *ZipArchiver) Compress(inputPath, outputPath, entryName string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open dump file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)

	entry, err := zw.Create(entryName)
	if err != nil {
		zw.Close()
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("failed to create archive entry: %w", err)
	}

	if _, err := io.Copy(entry, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("failed to compress dump: %w", err)
	}

	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("archive is empty")
	}

	return nil
}
