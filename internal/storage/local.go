package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalDisk stores blobs under a root directory on the server's filesystem.
type LocalDisk struct {
	root string
}

func NewLocalDisk(root string) *LocalDisk {
	return &LocalDisk{root: root}
}

// resolve joins the backend-relative path under the root, rejecting paths
// that would escape it.
func (d *LocalDisk) resolve(path string) (string, error) {
	full := filepath.Join(d.root, filepath.Clean("/"+path))
	if full != d.root && !strings.HasPrefix(full, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root: %s", path)
	}
	return full, nil
}

func (d *LocalDisk) Put(ctx context.Context, path string, data []byte) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (d *LocalDisk) Get(ctx context.Context, path string) ([]byte, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (d *LocalDisk) Exists(ctx context.Context, path string) (bool, error) {
	full, err := d.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *LocalDisk) Size(ctx context.Context, path string) (int64, error) {
	full, err := d.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size(), nil
}

func (d *LocalDisk) Delete(ctx context.Context, path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			// Already gone, which is what the caller wanted.
			return nil
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// ArchivePath returns the absolute filesystem path for a backend-relative
// path. The orchestrator uses it to write local archives directly into the
// serving directory instead of staging them first.
func (d *LocalDisk) ArchivePath(path string) (string, error) {
	return d.resolve(path)
}
