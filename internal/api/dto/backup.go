package dto

import "time"

// CreateBackupRequest represents the backup creation request
type CreateBackupRequest struct {
	StorageDisk *string `json:"storage_disk" binding:"omitempty,oneof=local remote"` // Defaults to the configured disk
}

// CreateBackupResponse is the creation outcome: the terminal record plus a
// human-readable summary of what happened to it.
type CreateBackupResponse struct {
	BackupResponse
	Message string `json:"message"`
}

// BackupResponse represents a backup record
type BackupResponse struct {
	ID           string                 `json:"id"`
	Filename     string                 `json:"filename"`
	FileSize     *int64                 `json:"file_size,omitempty"`
	Type         string                 `json:"type"`
	Status       string                 `json:"status"`
	StorageDisk  string                 `json:"storage_disk"`
	CreatedBy    *string                `json:"created_by,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	Info         map[string]interface{} `json:"info,omitempty"`
	FileExists   *bool                  `json:"file_exists,omitempty"` // Only on single-record responses
	DownloadURL  *string                `json:"download_url,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// BackupListResponse represents a list of backups
type BackupListResponse struct {
	Items      []BackupResponse `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}

// BackupStatsResponse represents aggregate backup statistics
type BackupStatsResponse struct {
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	ByDisk        map[string]int `json:"by_disk"`
	TotalSize     int64          `json:"total_size"`
	LastCompleted *time.Time     `json:"last_completed,omitempty"`
}
