package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acredita/respaldo/internal/api/handler"
	"github.com/acredita/respaldo/internal/api/middleware"
	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/service"
	"github.com/acredita/respaldo/pkg/config"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	authService *service.AuthService,
	backupService *service.BackupService,
	cleanupService *service.CleanupService,
) *Server {
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandlerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	defaultDisk, err := domain.ParseStorageDisk(cfg.DefaultDisk)
	if err != nil {
		defaultDisk = domain.StorageDiskLocal
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	backupHandler := handler.NewBackupHandler(backupService, authService, defaultDisk)
	downloadHandler := handler.NewDownloadHandler(backupService, authService)
	cleanupHandler := handler.NewCleanupHandler(cleanupService)

	// Public routes (no auth required)
	auth := router.Group("/auth")
	{
		auth.POST("/authorize", authHandler.Authorize)
		auth.POST("/token", authHandler.Token)
	}

	// Protected routes: all backup management requires the admin role
	sessionAuth := middleware.AuthMiddleware(authService)
	queryAuth := middleware.QueryTokenAuthMiddleware(authService)
	adminOnly := middleware.RequireRole(authService, domain.RoleAdmin)

	backups := router.Group("/backups")
	backups.Use(sessionAuth, adminOnly)
	{
		backups.POST("", backupHandler.CreateBackup)
		backups.GET("", backupHandler.ListBackups)
		backups.GET("/stats", backupHandler.GetStats)
		backups.GET("/:id", backupHandler.GetBackup)
		backups.DELETE("/:id", backupHandler.DeleteBackup)
		backups.GET("/download/:id", downloadHandler.Download)
		backups.POST("/cleanup", cleanupHandler.Cleanup)
	}

	// Token-in-query download, for clients that cannot set headers
	router.GET("/backups/download-public/:id", queryAuth, adminOnly, downloadHandler.Download)

	// Capability download; the single-use grant is the credential
	router.GET("/download-backup/:id", downloadHandler.DownloadWithGrant)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	server := &Server{
		router: router,
		config: cfg,
	}

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)

	s.srv = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		fmt.Printf("Starting HTTPS server on %s\n", addr)
		return s.srv.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey)
	}

	fmt.Printf("Starting HTTP server on %s\n", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
