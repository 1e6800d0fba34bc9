package repository

import (
	"context"
	"time"

	"github.com/acredita/respaldo/internal/api/util"
	"github.com/acredita/respaldo/internal/core/domain"
)

type BackupFilter struct {
	util.ListFilter
}

// BackupStats aggregates counts and sizes across all backup records.
type BackupStats struct {
	ByStatus      map[string]int
	ByType        map[string]int
	ByDisk        map[string]int
	TotalSize     int64
	LastCompleted *time.Time
}

type BackupRepository interface {
	Create(ctx context.Context, backup *domain.Backup) error
	FindByID(ctx context.Context, id string) (*domain.Backup, error)
	Update(ctx context.Context, backup *domain.Backup) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter BackupFilter) ([]*domain.Backup, error)
	Count(ctx context.Context, filter BackupFilter) (int, error)

	// TransitionStatus performs an atomic compare-and-set on the status
	// column. It reports false when the record was not in the expected
	// state, so a duplicate orchestration cannot re-run a record that is
	// already processing.
	TransitionStatus(ctx context.Context, id string, from, to domain.BackupStatus) (bool, error)

	// FindOlderThan returns records created before the cutoff, for
	// retention cleanup.
	FindOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Backup, error)

	Stats(ctx context.Context) (*BackupStats, error)
}
