package domain

import (
	"time"

	"github.com/google/uuid"
)

// DownloadGrant is a short-lived, single-use capability for fetching one
// backup archive without a session. Grants are issued only to authenticated
// principals that already passed the role check, and are deleted on first use.
type DownloadGrant struct {
	Token     string    `db:"token"`
	BackupID  string    `db:"backup_id"`
	IssuedTo  string    `db:"issued_to"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func NewDownloadGrant(backupID, issuedTo string, ttl time.Duration) *DownloadGrant {
	now := time.Now()
	return &DownloadGrant{
		Token:     uuid.New().String(),
		BackupID:  backupID,
		IssuedTo:  issuedTo,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func (g *DownloadGrant) IsExpired() bool {
	return time.Now().After(g.ExpiresAt)
}
