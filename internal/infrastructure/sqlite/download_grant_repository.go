package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
)

type downloadGrantRepository struct {
	db *DB
}

func NewDownloadGrantRepository(db *DB) repository.DownloadGrantRepository {
	return &downloadGrantRepository{db: db}
}

func (r *downloadGrantRepository) Create(ctx context.Context, grant *domain.DownloadGrant) error {
	query := `
		INSERT INTO download_grant (token, backup_id, issued_to, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		grant.Token,
		grant.BackupID,
		grant.IssuedTo,
		grant.ExpiresAt,
		grant.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create download grant: %w", err)
	}
	return nil
}

func (r *downloadGrantRepository) FindByToken(ctx context.Context, token string) (*domain.DownloadGrant, error) {
	query := `SELECT token, backup_id, issued_to, expires_at, created_at FROM download_grant WHERE token = ?`

	var grant domain.DownloadGrant
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&grant.Token,
		&grant.BackupID,
		&grant.IssuedTo,
		&grant.ExpiresAt,
		&grant.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("download grant: %w", repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find download grant: %w", err)
	}

	return &grant, nil
}

func (r *downloadGrantRepository) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM download_grant WHERE token = ?`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to delete download grant: %w", err)
	}
	return nil
}

func (r *downloadGrantRepository) DeleteExpired(ctx context.Context) error {
	query := `DELETE FROM download_grant WHERE expires_at < ?`

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to delete expired download grants: %w", err)
	}
	return nil
}
