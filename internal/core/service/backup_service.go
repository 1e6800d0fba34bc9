package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/acredita/respaldo/internal/adapter/archive"
	"github.com/acredita/respaldo/internal/adapter/dump"
	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
	"github.com/acredita/respaldo/internal/storage"
)

// BackupService orchestrates the dump -> archive -> store pipeline and owns
// every state transition of a backup record. Runs for distinct records are
// fully independent; the atomic pending -> processing transition guards the
// same record against a duplicate run.
type BackupService struct {
	repo          repository.BackupRepository
	disks         *storage.Resolver
	local         *storage.LocalDisk
	dumper        dump.Executor
	archiver      archive.Archiver
	conn          dump.ConnectionParams
	stagingDir    string
	uploadTimeout time.Duration
	logger        zerolog.Logger
}

func NewBackupService(
	repo repository.BackupRepository,
	disks *storage.Resolver,
	local *storage.LocalDisk,
	dumper dump.Executor,
	archiver archive.Archiver,
	conn dump.ConnectionParams,
	stagingDir string,
	uploadTimeout time.Duration,
	logger zerolog.Logger,
) *BackupService {
	return &BackupService{
		repo:          repo,
		disks:         disks,
		local:         local,
		dumper:        dumper,
		archiver:      archiver,
		conn:          conn,
		stagingDir:    stagingDir,
		uploadTimeout: uploadTimeout,
		logger:        logger.With().Str("component", "backup-service").Logger(),
	}
}

// Create persists a new pending record and drives it to a terminal state.
// Every step failure is terminal for the run; retrying means creating a new
// record, never resuming this one. The record is returned even when the run
// failed, so callers can show the failed state.
func (s *BackupService) Create(ctx context.Context, backupType domain.BackupType, disk domain.StorageDisk, requestedBy *string) (*domain.Backup, error) {
	b := domain.NewBackup(backupType, disk, requestedBy)
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create backup record: %w", err)
	}
	if err := s.run(ctx, b); err != nil {
		return b, err
	}
	return b, nil
}

func (s *BackupService) run(ctx context.Context, b *domain.Backup) error {
	ok, err := s.repo.TransitionStatus(ctx, b.ID, domain.BackupStatusPending, domain.BackupStatusProcessing)
	if err != nil {
		return s.fail(ctx, b, fmt.Sprintf("failed to start backup: %v", err))
	}
	if !ok {
		return NewServiceError(http.StatusConflict, "backup is already being processed")
	}
	b.Status = domain.BackupStatusProcessing

	if err := os.MkdirAll(s.stagingDir, 0o750); err != nil {
		return s.fail(ctx, b, fmt.Sprintf("failed to prepare staging directory: %v", err))
	}

	// Distinct filenames per record keep concurrent runs off each other's
	// staging files.
	dumpPath := filepath.Join(s.stagingDir, b.ID+".sql")
	res, err := s.dumper.Dump(ctx, s.conn, dumpPath)
	if res != nil {
		b.Info["dump_exit_code"] = res.ExitCode
		if res.Output != "" {
			b.Info["dump_output"] = res.Output
		}
	}
	if err != nil {
		_ = os.Remove(dumpPath)
		msg := fmt.Sprintf("database dump failed: %v", err)
		if res != nil && res.Output != "" {
			msg = fmt.Sprintf("%s: %s", msg, res.Output)
		}
		return s.fail(ctx, b, msg)
	}
	if info, statErr := os.Stat(dumpPath); statErr == nil {
		b.Info["dump_size"] = info.Size()
	}

	// Local archives go straight to the serving directory; remote archives
	// are staged locally first and uploaded afterwards.
	var archivePath string
	if b.StorageDisk == domain.StorageDiskLocal {
		archivePath, err = s.local.ArchivePath(b.Filename)
		if err != nil {
			return s.fail(ctx, b, fmt.Sprintf("invalid archive path: %v", err))
		}
	} else {
		archivePath = filepath.Join(s.stagingDir, b.Filename)
	}

	if err := s.archiver.Compress(dumpPath, archivePath, b.DumpName()); err != nil {
		// The dump stays on disk for operator inspection.
		return s.fail(ctx, b, fmt.Sprintf("failed to archive dump: %v", err))
	}

	info, err := os.Stat(archivePath)
	if err != nil || info.Size() == 0 {
		return s.fail(ctx, b, "archive is missing or empty")
	}
	size := info.Size()
	b.Info["archive_size"] = size

	// The intermediate dump is only removed once the archive is verified.
	_ = os.Remove(dumpPath)

	if b.StorageDisk == domain.StorageDiskRemote {
		backend, err := s.disks.ForDisk(domain.StorageDiskRemote)
		if err != nil {
			return s.fail(ctx, b, err.Error())
		}
		data, err := os.ReadFile(archivePath)
		if err != nil {
			return s.fail(ctx, b, fmt.Sprintf("failed to read staged archive: %v", err))
		}
		// The request context carries no deadline, so the upload gets
		// its own. A stalled network call must not hold the record in
		// processing forever.
		uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
		err = backend.Put(uploadCtx, b.Filename, data)
		cancel()
		if err != nil {
			// The staging file is kept: it never reached the
			// destination and may be the only copy.
			if errors.Is(err, context.DeadlineExceeded) || uploadCtx.Err() == context.DeadlineExceeded {
				return s.fail(ctx, b, fmt.Sprintf("upload timed out after %s", s.uploadTimeout))
			}
			return s.fail(ctx, b, fmt.Sprintf("upload failed: %v", err))
		}
		_ = os.Remove(archivePath)
	}

	b.MarkCompleted(b.Filename, size, time.Now().UTC())
	if err := s.repo.Update(ctx, b); err != nil {
		return fmt.Errorf("failed to finalize backup record: %w", err)
	}

	s.logger.Info().
		Str("backup_id", b.ID).
		Str("disk", string(b.StorageDisk)).
		Int64("bytes", size).
		Msg("backup completed")
	return nil
}

// fail moves the record to its terminal failed state and surfaces a
// structured error. The update error, if any, is logged rather than masking
// the original failure.
func (s *BackupService) fail(ctx context.Context, b *domain.Backup, message string) error {
	b.MarkFailed(message)
	if err := s.repo.Update(ctx, b); err != nil {
		s.logger.Error().Err(err).Str("backup_id", b.ID).Msg("failed to persist failed state")
	}
	s.logger.Error().Str("backup_id", b.ID).Msg(message)
	return NewServiceError(http.StatusInternalServerError, message)
}

// Get retrieves a backup by ID
func (s *BackupService) Get(ctx context.Context, id string) (*domain.Backup, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewServiceError(http.StatusNotFound, fmt.Sprintf("backup not found: %s", id))
		}
		return nil, err
	}
	return b, nil
}

// List lists backups with filtering
func (s *BackupService) List(ctx context.Context, filter repository.BackupFilter) ([]*domain.Backup, error) {
	return s.repo.List(ctx, filter)
}

// Count counts backups with filtering
func (s *BackupService) Count(ctx context.Context, filter repository.BackupFilter) (int, error) {
	return s.repo.Count(ctx, filter)
}

// Stats aggregates record counts and sizes for the stats endpoint.
func (s *BackupService) Stats(ctx context.Context) (*repository.BackupStats, error) {
	return s.repo.Stats(ctx)
}

// FileExists reports whether the record's blob is present on its backend.
func (s *BackupService) FileExists(ctx context.Context, b *domain.Backup) bool {
	if b.Status != domain.BackupStatusCompleted || b.FilePath == nil {
		return false
	}
	backend, err := s.disks.ForDisk(b.StorageDisk)
	if err != nil {
		return false
	}
	exists, err := backend.Exists(ctx, *b.FilePath)
	return err == nil && exists
}

// OpenDownload resolves a completed backup's archive bytes. A record that is
// not completed, a missing blob, or a zero-byte blob is "not available" - an
// empty archive is never served as a successful download.
func (s *BackupService) OpenDownload(ctx context.Context, id string) (*domain.Backup, []byte, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if b.Status != domain.BackupStatusCompleted || b.FilePath == nil {
		return nil, nil, NewServiceError(http.StatusNotFound, "backup archive is not available")
	}

	backend, err := s.disks.ForDisk(b.StorageDisk)
	if err != nil {
		return nil, nil, NewServiceError(http.StatusInternalServerError, err.Error())
	}

	exists, err := backend.Exists(ctx, *b.FilePath)
	if err != nil || !exists {
		return nil, nil, NewServiceError(http.StatusNotFound, "backup archive is missing")
	}

	size, err := backend.Size(ctx, *b.FilePath)
	if err != nil {
		return nil, nil, NewServiceError(http.StatusNotFound, "backup archive is missing")
	}
	if size == 0 {
		return nil, nil, NewServiceError(http.StatusUnprocessableEntity, "backup archive is empty")
	}

	data, err := backend.Get(ctx, *b.FilePath)
	if err != nil {
		return nil, nil, NewServiceError(http.StatusInternalServerError, fmt.Sprintf("failed to read backup archive: %v", err))
	}
	return b, data, nil
}

// Delete removes a backup's blob and then its metadata row, in that order.
// The row survives when the blob could not be deleted, so metadata never
// points at an unverifiable state.
func (s *BackupService) Delete(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if b.FilePath != nil {
		backend, err := s.disks.ForDisk(b.StorageDisk)
		if err != nil {
			return NewServiceError(http.StatusInternalServerError, err.Error())
		}
		if err := backend.Delete(ctx, *b.FilePath); err != nil {
			return NewServiceError(http.StatusInternalServerError, fmt.Sprintf("failed to delete backup archive: %v", err))
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}

	s.logger.Info().Str("backup_id", id).Msg("backup deleted")
	return nil
}
