package dto

// CleanupRequest represents the retention cleanup request
type CleanupRequest struct {
	KeepDays int `json:"keep_days" binding:"required,min=1,max=365"`
}

// CleanupResponse reports the outcome of a retention cleanup run
type CleanupResponse struct {
	Deleted  int `json:"deleted"`
	KeepDays int `json:"keep_days"`
}
