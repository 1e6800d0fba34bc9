package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
)

const backupColumns = `id, filename, file_path, file_size, type, status, storage_disk, created_by, error_message, info, created_at, completed_at`

type backupRepository struct {
	db *DB
}

func NewBackupRepository(db *DB) repository.BackupRepository {
	return &backupRepository{db: db}
}

func (r *backupRepository) Create(ctx context.Context, backup *domain.Backup) error {
	query := `
		INSERT INTO backup (` + backupColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		backup.ID,
		backup.Filename,
		NullString(backup.FilePath),
		NullInt64(backup.FileSize),
		string(backup.Type),
		string(backup.Status),
		string(backup.StorageDisk),
		NullString(backup.CreatedBy),
		NullString(backup.ErrorMessage),
		marshalInfo(backup.Info),
		backup.CreatedAt,
		NullTimeFrom(backup.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

func (r *backupRepository) FindByID(ctx context.Context, id string) (*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE id = ?`
	return r.scanBackup(r.db.QueryRowContext(ctx, query, id))
}

func (r *backupRepository) Update(ctx context.Context, backup *domain.Backup) error {
	query := `
		UPDATE backup
		SET file_path = ?, file_size = ?, status = ?, error_message = ?, info = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		NullString(backup.FilePath),
		NullInt64(backup.FileSize),
		string(backup.Status),
		NullString(backup.ErrorMessage),
		marshalInfo(backup.Info),
		NullTimeFrom(backup.CompletedAt),
		backup.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update backup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup %s: %w", backup.ID, repository.ErrNotFound)
	}

	return nil
}

func (r *backupRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM backup WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup %s: %w", id, repository.ErrNotFound)
	}

	return nil
}

// TransitionStatus is the conditional state move the orchestrator relies on:
// the UPDATE only matches when the row is still in the expected state, so two
// racing runs cannot both win.
func (r *backupRepository) TransitionStatus(ctx context.Context, id string, from, to domain.BackupStatus) (bool, error) {
	query := `UPDATE backup SET status = ? WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition backup status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *backupRepository) List(ctx context.Context, filter repository.BackupFilter) ([]*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)
	query = ApplyOrdering(query, filter.Order, "created_at DESC")
	query, args = ApplyPagination(query, args, filter.Page, filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*domain.Backup
	for rows.Next() {
		backup, err := r.scanBackupRow(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

func (r *backupRepository) Count(ctx context.Context, filter repository.BackupFilter) (int, error) {
	query := `SELECT COUNT(*) FROM backup WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count backups: %w", err)
	}

	return count, nil
}

func (r *backupRepository) FindOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backup WHERE created_at < ? ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to find expired backups: %w", err)
	}
	defer rows.Close()

	var backups []*domain.Backup
	for rows.Next() {
		backup, err := r.scanBackupRow(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

func (r *backupRepository) Stats(ctx context.Context) (*repository.BackupStats, error) {
	stats := &repository.BackupStats{
		ByStatus: map[string]int{},
		ByType:   map[string]int{},
		ByDisk:   map[string]int{},
	}

	groupings := []struct {
		column string
		dest   map[string]int
	}{
		{"status", stats.ByStatus},
		{"type", stats.ByType},
		{"storage_disk", stats.ByDisk},
	}
	for _, g := range groupings {
		rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM backup GROUP BY %s`, g.column, g.column))
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate backups by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan aggregate: %w", err)
			}
			g.dest[key] = count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating aggregates: %w", err)
		}
		rows.Close()
	}

	var totalSize sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT SUM(file_size) FROM backup WHERE status = 'completed'`).Scan(&totalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sum backup sizes: %w", err)
	}
	if totalSize.Valid {
		stats.TotalSize = totalSize.Int64
	}

	var last sql.NullTime
	err = r.db.QueryRowContext(ctx, `SELECT MAX(completed_at) FROM backup WHERE status = 'completed'`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to find last completed backup: %w", err)
	}
	if last.Valid {
		stats.LastCompleted = &last.Time
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *backupRepository) scanBackup(row *sql.Row) (*domain.Backup, error) {
	backup, err := scanBackupFields(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup: %w", repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}
	return backup, nil
}

func (r *backupRepository) scanBackupRow(rows *sql.Rows) (*domain.Backup, error) {
	backup, err := scanBackupFields(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}
	return backup, nil
}

func scanBackupFields(s rowScanner) (*domain.Backup, error) {
	var backup domain.Backup
	var filePath, createdBy, errorMessage sql.NullString
	var fileSize sql.NullInt64
	var backupType, status, disk, info string
	var completedAt sql.NullTime

	err := s.Scan(
		&backup.ID,
		&backup.Filename,
		&filePath,
		&fileSize,
		&backupType,
		&status,
		&disk,
		&createdBy,
		&errorMessage,
		&info,
		&backup.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	backup.Type = domain.BackupType(backupType)
	backup.Status = domain.BackupStatus(status)
	backup.StorageDisk = domain.StorageDisk(disk)

	if filePath.Valid {
		backup.FilePath = &filePath.String
	}
	if fileSize.Valid {
		backup.FileSize = &fileSize.Int64
	}
	if createdBy.Valid {
		backup.CreatedBy = &createdBy.String
	}
	if errorMessage.Valid {
		backup.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		backup.CompletedAt = &completedAt.Time
	}

	backup.Info = map[string]interface{}{}
	if info != "" {
		_ = json.Unmarshal([]byte(info), &backup.Info)
	}

	return &backup, nil
}

func marshalInfo(info map[string]interface{}) string {
	if len(info) == 0 {
		return "{}"
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "{}"
	}
	return string(data)
}
