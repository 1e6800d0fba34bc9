package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BackupType string

const (
	BackupTypeManual    BackupType = "manual"
	BackupTypeScheduled BackupType = "scheduled"
)

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusProcessing BackupStatus = "processing"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
)

// StorageDisk is the closed set of storage destinations. It is chosen at
// creation time and never changes afterwards.
type StorageDisk string

const (
	StorageDiskLocal  StorageDisk = "local"
	StorageDiskRemote StorageDisk = "remote"
)

func ParseStorageDisk(s string) (StorageDisk, error) {
	switch StorageDisk(s) {
	case StorageDiskLocal:
		return StorageDiskLocal, nil
	case StorageDiskRemote:
		return StorageDiskRemote, nil
	}
	return "", fmt.Errorf("invalid storage disk: %q (must be 'local' or 'remote')", s)
}

func ParseBackupType(s string) (BackupType, error) {
	switch BackupType(s) {
	case BackupTypeManual:
		return BackupTypeManual, nil
	case BackupTypeScheduled:
		return BackupTypeScheduled, nil
	}
	return "", fmt.Errorf("invalid backup type: %q (must be 'manual' or 'scheduled')", s)
}

// Backup is the persisted metadata for one backup attempt.
//
// FilePath and FileSize are set exactly when Status is completed;
// ErrorMessage is set exactly when Status is failed.
type Backup struct {
	ID           string                 `db:"id"`
	Filename     string                 `db:"filename"`
	FilePath     *string                `db:"file_path"`
	FileSize     *int64                 `db:"file_size"`
	Type         BackupType             `db:"type"`
	Status       BackupStatus           `db:"status"`
	StorageDisk  StorageDisk            `db:"storage_disk"`
	CreatedBy    *string                `db:"created_by"` // nil for system-scheduled backups
	ErrorMessage *string                `db:"error_message"`
	Info         map[string]interface{} `db:"-"` // auxiliary diagnostics, stored as JSON
	CreatedAt    time.Time              `db:"created_at"`
	CompletedAt  *time.Time             `db:"completed_at"`
}

// NewBackup creates a pending backup with a collision-resistant archive
// filename: a timestamp plus a random token, so two backups requested in the
// same second never overwrite each other.
func NewBackup(backupType BackupType, disk StorageDisk, createdBy *string) *Backup {
	now := time.Now().UTC()
	token := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return &Backup{
		ID:          uuid.New().String(),
		Filename:    fmt.Sprintf("backup-%s-%s.zip", now.Format("20060102-150405"), token),
		Type:        backupType,
		Status:      BackupStatusPending,
		StorageDisk: disk,
		CreatedBy:   createdBy,
		Info:        map[string]interface{}{},
		CreatedAt:   now,
	}
}

// DumpName is the single archive entry name for this backup's dump.
func (b *Backup) DumpName() string {
	return strings.TrimSuffix(b.Filename, ".zip") + ".sql"
}

func (b *Backup) MarkCompleted(path string, size int64, at time.Time) {
	b.Status = BackupStatusCompleted
	b.FilePath = &path
	b.FileSize = &size
	b.CompletedAt = &at
	b.ErrorMessage = nil
}

func (b *Backup) MarkFailed(message string) {
	b.Status = BackupStatusFailed
	b.FilePath = nil
	b.FileSize = nil
	b.CompletedAt = nil
	b.ErrorMessage = &message
}
