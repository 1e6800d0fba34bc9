package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acredita/respaldo/internal/api/dto"
	"github.com/acredita/respaldo/internal/api/middleware"
	"github.com/acredita/respaldo/internal/api/util"
	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
	"github.com/acredita/respaldo/internal/core/service"
)

// Allowed fields for backup queries and ordering
var (
	backupQueryFields = []string{"id", "filename", "type", "status", "storage_disk", "created_by", "created_at", "completed_at"}
	backupOrderFields = []string{"id", "filename", "created_at", "completed_at", "file_size"}
)

type BackupHandler struct {
	backupService *service.BackupService
	authService   *service.AuthService
	defaultDisk   domain.StorageDisk
}

func NewBackupHandler(backupService *service.BackupService, authService *service.AuthService, defaultDisk domain.StorageDisk) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
		authService:   authService,
		defaultDisk:   defaultDisk,
	}
}

// CreateBackup handles POST /backups. The pipeline runs synchronously: the
// response carries the terminal record, completed or failed.
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req dto.CreateBackupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
	}

	disk := h.defaultDisk
	if req.StorageDisk != nil {
		parsed, err := domain.ParseStorageDisk(*req.StorageDisk)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
		disk = parsed
	}

	var requestedBy *string
	if claims, ok := middleware.GetAuthClaims(c); ok {
		requestedBy = &claims.Subject
	}

	backup, err := h.backupService.Create(c.Request.Context(), domain.BackupTypeManual, disk, requestedBy)
	if err != nil {
		// The failed record is still returned so the caller can inspect
		// the error state without a second request.
		var svcErr *service.ServiceError
		if errors.As(err, &svcErr) && backup != nil {
			c.JSON(svcErr.Code, dto.CreateBackupResponse{
				BackupResponse: toBackupResponse(backup),
				Message:        svcErr.Message,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal Server Error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateBackupResponse{
		BackupResponse: toBackupResponse(backup),
		Message:        fmt.Sprintf("backup completed: %s", backup.Filename),
	})
}

// GetBackup handles GET /backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	id := c.Param("id")

	backup, err := h.backupService.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := toBackupResponse(backup)
	exists := h.backupService.FileExists(c.Request.Context(), backup)
	resp.FileExists = &exists

	// A capability URL is only offered when there is actually something to
	// download. The grant is single use and short lived.
	if exists {
		if claims, ok := middleware.GetAuthClaims(c); ok {
			grant, err := h.authService.IssueDownloadGrant(c.Request.Context(), backup.ID, claims.Subject)
			if err == nil {
				url := fmt.Sprintf("/download-backup/%s?grant=%s", backup.ID, grant.Token)
				resp.DownloadURL = &url
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ListBackups handles GET /backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	filter := repository.BackupFilter{
		ListFilter: util.ListFilter{
			Page:    page,
			PerPage: perPage,
		},
	}

	// Shorthand filters for the common cases
	if status := c.Query("status"); status != "" {
		filter.Filters = append(filter.Filters, util.QueryFilter{Field: "status", Operator: util.OpEq, Value: status})
	}
	if backupType := c.Query("type"); backupType != "" {
		filter.Filters = append(filter.Filters, util.QueryFilter{Field: "type", Operator: util.OpEq, Value: backupType})
	}
	if daysStr := c.Query("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days < 1 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: "days must be a positive integer",
				Code:    http.StatusBadRequest,
			})
			return
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02 15:04:05")
		filter.Filters = append(filter.Filters, util.QueryFilter{Field: "created_at", Operator: util.OpGte, Value: cutoff})
	}

	// Parse query filters
	if queryStr := c.Query("query"); queryStr != "" {
		filters, err := util.ParseQueryString(queryStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}

		if err := util.ValidateFilterFields(filters, backupQueryFields); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}

		filter.Filters = append(filter.Filters, filters...)
	}

	// Parse order
	if orderStr := c.Query("order"); orderStr != "" {
		orders, err := util.ParseOrderString(orderStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}

		if err := util.ValidateOrderFields(orders, backupOrderFields); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad Request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}

		filter.Order = orders
	}

	backups, err := h.backupService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal Server Error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	count, _ := h.backupService.Count(c.Request.Context(), filter)

	totalPages := 0
	if perPage > 0 {
		totalPages = (count + perPage - 1) / perPage
	}

	response := dto.BackupListResponse{
		Items: make([]dto.BackupResponse, len(backups)),
		Pagination: dto.PaginationInfo{
			Total:      count,
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
		},
	}

	for i, backup := range backups {
		response.Items[i] = toBackupResponse(backup)
	}

	c.JSON(http.StatusOK, response)
}

// DeleteBackup handles DELETE /backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	id := c.Param("id")

	if err := h.backupService.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStats handles GET /backups/stats
func (h *BackupHandler) GetStats(c *gin.Context) {
	stats, err := h.backupService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal Server Error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, dto.BackupStatsResponse{
		ByStatus:      stats.ByStatus,
		ByType:        stats.ByType,
		ByDisk:        stats.ByDisk,
		TotalSize:     stats.TotalSize,
		LastCompleted: stats.LastCompleted,
	})
}

func toBackupResponse(backup *domain.Backup) dto.BackupResponse {
	return dto.BackupResponse{
		ID:           backup.ID,
		Filename:     backup.Filename,
		FileSize:     backup.FileSize,
		Type:         string(backup.Type),
		Status:       string(backup.Status),
		StorageDisk:  string(backup.StorageDisk),
		CreatedBy:    backup.CreatedBy,
		ErrorMessage: backup.ErrorMessage,
		Info:         backup.Info,
		CreatedAt:    backup.CreatedAt,
		CompletedAt:  backup.CompletedAt,
	}
}

// respondServiceError maps a ServiceError to its HTTP status, anything else
// to a 500.
func respondServiceError(c *gin.Context, err error) {
	var svcErr *service.ServiceError
	if errors.As(err, &svcErr) {
		c.JSON(svcErr.Code, dto.ErrorResponse{
			Error:   http.StatusText(svcErr.Code),
			Message: svcErr.Message,
			Code:    svcErr.Code,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "Internal Server Error",
		Message: err.Error(),
		Code:    http.StatusInternalServerError,
	})
}
