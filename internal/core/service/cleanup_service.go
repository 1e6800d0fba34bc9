package service

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/acredita/respaldo/internal/core/repository"
	"github.com/acredita/respaldo/internal/storage"
)

// CleanupService deletes backups older than a retention horizon. For each
// record the blob goes first and the metadata row only after the blob delete
// succeeded; a failure on one record never aborts the rest of the batch.
type CleanupService struct {
	repo   repository.BackupRepository
	disks  *storage.Resolver
	logger zerolog.Logger
}

func NewCleanupService(repo repository.BackupRepository, disks *storage.Resolver, logger zerolog.Logger) *CleanupService {
	return &CleanupService{
		repo:   repo,
		disks:  disks,
		logger: logger.With().Str("component", "cleanup-service").Logger(),
	}
}

// Cleanup deletes records created more than keepDays ago and returns how
// many were fully removed. An already-absent blob counts as deleted, since
// the goal is metadata and blob both gone.
func (s *CleanupService) Cleanup(ctx context.Context, keepDays int) (int, error) {
	if keepDays < 1 || keepDays > 365 {
		return 0, NewServiceError(http.StatusUnprocessableEntity, "keep_days must be between 1 and 365")
	}

	cutoff := time.Now().AddDate(0, 0, -keepDays)
	records, err := s.repo.FindOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, b := range records {
		if b.FilePath != nil {
			backend, err := s.disks.ForDisk(b.StorageDisk)
			if err != nil {
				s.logger.Warn().Err(err).Str("backup_id", b.ID).Msg("skipping cleanup, backend unavailable")
				continue
			}
			if err := backend.Delete(ctx, *b.FilePath); err != nil {
				// Never delete metadata for a blob that failed to delete.
				s.logger.Warn().Err(err).Str("backup_id", b.ID).Msg("skipping cleanup, blob delete failed")
				continue
			}
		}

		if err := s.repo.Delete(ctx, b.ID); err != nil {
			s.logger.Warn().Err(err).Str("backup_id", b.ID).Msg("failed to delete backup record")
			continue
		}
		deleted++
	}

	s.logger.Info().Int("deleted", deleted).Int("keep_days", keepDays).Msg("retention cleanup finished")
	return deleted, nil
}
