package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acredita/respaldo/internal/api/dto"
	"github.com/acredita/respaldo/internal/core/service"
)

type CleanupHandler struct {
	cleanupService *service.CleanupService
}

func NewCleanupHandler(cleanupService *service.CleanupService) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
	}
}

// Cleanup handles POST /backups/cleanup
func (h *CleanupHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	deleted, err := h.cleanupService.Cleanup(c.Request.Context(), req.KeepDays)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{
		Deleted:  deleted,
		KeepDays: req.KeepDays,
	})
}
