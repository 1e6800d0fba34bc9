package storage

import (
	"context"
	"fmt"

	"github.com/acredita/respaldo/internal/core/domain"
)

// Backend is a pluggable destination for archive bytes. Paths are
// backend-relative. Backends never retry internally; retry policy belongs to
// the caller.
type Backend interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Size(ctx context.Context, path string) (int64, error)
	Delete(ctx context.Context, path string) error
}

// Resolver maps a storage disk to its configured backend. The disk string is
// resolved once at the orchestrator boundary instead of being branched on
// throughout the code.
type Resolver struct {
	local  Backend
	remote Backend
}

func NewResolver(local, remote Backend) *Resolver {
	return &Resolver{local: local, remote: remote}
}

func (r *Resolver) ForDisk(disk domain.StorageDisk) (Backend, error) {
	switch disk {
	case domain.StorageDiskLocal:
		if r.local == nil {
			return nil, fmt.Errorf("local storage backend is not configured")
		}
		return r.local, nil
	case domain.StorageDiskRemote:
		if r.remote == nil {
			return nil, fmt.Errorf("remote storage backend is not configured")
		}
		return r.remote, nil
	}
	return nil, fmt.Errorf("unknown storage disk: %s", disk)
}
