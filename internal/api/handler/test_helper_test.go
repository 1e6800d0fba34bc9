package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/acredita/respaldo/internal/adapter/archive"
	"github.com/acredita/respaldo/internal/adapter/dump"
	"github.com/acredita/respaldo/internal/api/dto"
	"github.com/acredita/respaldo/internal/api/middleware"
	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
	"github.com/acredita/respaldo/internal/core/service"
	"github.com/acredita/respaldo/internal/infrastructure/sqlite"
	"github.com/acredita/respaldo/internal/storage"
)

// stubDumper writes a canned dump file, or fails when told to.
type stubDumper struct {
	fail bool
}

func (d *stubDumper) Dump(ctx context.Context, params dump.ConnectionParams, outputPath string) (*dump.Result, error) {
	if d.fail {
		return &dump.Result{ExitCode: 2, Output: "Access denied"}, io.ErrUnexpectedEOF
	}
	if err := os.WriteFile(outputPath, []byte("CREATE TABLE t (id INT);\n"), 0o640); err != nil {
		return nil, err
	}
	return &dump.Result{ExitCode: 0, Output: ""}, nil
}

// testEnv holds all test dependencies
type testEnv struct {
	db             *sqlite.DB
	router         *gin.Engine
	backupDir      string
	backupRepo     repository.BackupRepository
	local          *storage.LocalDisk
	dumper         *stubDumper
	authService    *service.AuthService
	backupService  *service.BackupService
	cleanupService *service.CleanupService
}

// setupTestEnv creates a test environment with an in-memory SQLite database
// and the full route table, auth middleware included.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backupDir := t.TempDir()
	stagingDir := filepath.Join(t.TempDir(), "staging")

	userRepo := sqlite.NewUserRepository(db)
	authCodeRepo := sqlite.NewAuthCodeRepository(db)
	backupRepo := sqlite.NewBackupRepository(db)
	grantRepo := sqlite.NewDownloadGrantRepository(db)

	local := storage.NewLocalDisk(backupDir)
	disks := storage.NewResolver(local, nil)
	dumper := &stubDumper{}

	authService := service.NewAuthService(userRepo, authCodeRepo, grantRepo, "test-secret", "HS256")
	backupService := service.NewBackupService(
		backupRepo, disks, local, dumper, archive.NewZipArchiver(),
		dump.ConnectionParams{Host: "127.0.0.1", Port: 3306, User: "backup", Password: "pw", Database: "acredita"},
		stagingDir, time.Minute, zerolog.Nop(),
	)
	cleanupService := service.NewCleanupService(backupRepo, disks, zerolog.Nop())

	authHandler := NewAuthHandler(authService)
	backupHandler := NewBackupHandler(backupService, authService, domain.StorageDiskLocal)
	downloadHandler := NewDownloadHandler(backupService, authService)
	cleanupHandler := NewCleanupHandler(cleanupService)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	sessionAuth := middleware.AuthMiddleware(authService)
	queryAuth := middleware.QueryTokenAuthMiddleware(authService)
	adminOnly := middleware.RequireRole(authService, domain.RoleAdmin)

	router.POST("/auth/authorize", authHandler.Authorize)
	router.POST("/auth/token", authHandler.Token)

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

	router.GET("/backups/download-public/:id", queryAuth, adminOnly, downloadHandler.Download)
	router.GET("/download-backup/:id", downloadHandler.DownloadWithGrant)

	env := &testEnv{
		db:             db,
		router:         router,
		backupDir:      backupDir,
		backupRepo:     backupRepo,
		local:          local,
		dumper:         dumper,
		authService:    authService,
		backupService:  backupService,
		cleanupService: cleanupService,
	}

	env.createUser(t, "admin", "admin-password", domain.RoleAdmin)
	env.createUser(t, "viewer", "viewer-password", domain.RoleViewer)

	return env
}

func (env *testEnv) createUser(t *testing.T, username, password, role string) {
	t.Helper()

	hash, err := env.authService.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := domain.NewUser(username, hash, role)
	if err := sqlite.NewUserRepository(env.db).Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
}

// tokenFor runs the full authorize/exchange flow and returns a JWT.
func (env *testEnv) tokenFor(t *testing.T, username, password string) string {
	t.Helper()

	code, err := env.authService.AuthorizeUser(context.Background(), username, password)
	if err != nil {
		t.Fatalf("failed to authorize %s: %v", username, err)
	}
	token, err := env.authService.ExchangeAuthCode(context.Background(), code.Code)
	if err != nil {
		t.Fatalf("failed to exchange code for %s: %v", username, err)
	}
	return token
}

// request performs an HTTP request against the test router.
func (env *testEnv) request(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, body)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// seedCompletedBackup inserts a completed record with a real archive on disk.
func (env *testEnv) seedCompletedBackup(t *testing.T, backupType domain.BackupType, age time.Duration) *domain.Backup {
	t.Helper()
	ctx := context.Background()

	b := domain.NewBackup(backupType, domain.StorageDiskLocal, nil)
	b.CreatedAt = time.Now().UTC().Add(-age)
	b.MarkCompleted(b.Filename, 4, b.CreatedAt.Add(time.Minute))

	if err := env.backupRepo.Create(ctx, b); err != nil {
		t.Fatalf("failed to seed backup: %v", err)
	}
	if err := env.local.Put(ctx, b.Filename, []byte("PK\x03\x04")); err != nil {
		t.Fatalf("failed to seed blob: %v", err)
	}
	return b
}

func parseBackupResponse(t *testing.T, w *httptest.ResponseRecorder) dto.BackupResponse {
	t.Helper()

	var resp dto.BackupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return resp
}

func parseCreateBackupResponse(t *testing.T, w *httptest.ResponseRecorder) dto.CreateBackupResponse {
	t.Helper()

	var resp dto.CreateBackupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return resp
}

func parseBackupListResponse(t *testing.T, w *httptest.ResponseRecorder) dto.BackupListResponse {
	t.Helper()

	var resp dto.BackupListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return resp
}
