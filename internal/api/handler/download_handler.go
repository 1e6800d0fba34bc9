package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/acredita/respaldo/internal/api/dto"
	"github.com/acredita/respaldo/internal/core/service"
)

// DownloadHandler serves backup archives over three routes: a Bearer-session
// route, a token-in-query route for clients that cannot set headers, and a
// capability route consuming single-use grants. The first two are
// authenticated by middleware; the grant route authorizes itself.
type DownloadHandler struct {
	backupService *service.BackupService
	authService   *service.AuthService
}

func NewDownloadHandler(backupService *service.BackupService, authService *service.AuthService) *DownloadHandler {
	return &DownloadHandler{
		backupService: backupService,
		authService:   authService,
	}
}

// Download handles GET /backups/download/:id and GET /backups/download-public/:id
func (h *DownloadHandler) Download(c *gin.Context) {
	h.serve(c, c.Param("id"))
}

// DownloadWithGrant handles GET /download-backup/:id?grant=
func (h *DownloadHandler) DownloadWithGrant(c *gin.Context) {
	id := c.Param("id")

	grant := c.Query("grant")
	if grant == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "Missing grant parameter",
			Code:    http.StatusUnauthorized,
		})
		return
	}

	if err := h.authService.ConsumeDownloadGrant(c.Request.Context(), grant, id); err != nil {
		respondServiceError(c, err)
		return
	}

	h.serve(c, id)
}

func (h *DownloadHandler) serve(c *gin.Context, id string) {
	backup, data, err := h.backupService.OpenDownload(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.Filename))
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, "application/zip", data)
}
