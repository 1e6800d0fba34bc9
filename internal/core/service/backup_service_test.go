package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/acredita/respaldo/internal/adapter/archive"
	"github.com/acredita/respaldo/internal/adapter/dump"
	"github.com/acredita/respaldo/internal/core/domain"
	"github.com/acredita/respaldo/internal/core/repository"
	"github.com/acredita/respaldo/internal/infrastructure/sqlite"
	"github.com/acredita/respaldo/internal/storage"
)

// fakeDumper stands in for the dump tool: it writes content to the output
// path, or fails with a canned result.
type fakeDumper struct {
	content string
	output  string
	err     error
}

func (f *fakeDumper) Dump(ctx context.Context, params dump.ConnectionParams, outputPath string) (*dump.Result, error) {
	if f.err != nil {
		return &dump.Result{ExitCode: 2, Output: f.output}, f.err
	}
	if err := os.WriteFile(outputPath, []byte(f.content), 0o640); err != nil {
		return nil, err
	}
	return &dump.Result{ExitCode: 0, Output: f.output}, nil
}

// fakeArchiver delegates to the real zip archiver unless told to fail.
type fakeArchiver struct {
	err  error
	real archive.Archiver
}

func (f *fakeArchiver) Compress(inputPath, outputPath, entryName string) error {
	if f.err != nil {
		return f.err
	}
	return f.real.Compress(inputPath, outputPath, entryName)
}

// fakeRemote is an in-memory Backend with switchable failures.
type fakeRemote struct {
	blobs     map[string][]byte
	putErr    error
	deleteErr error
	blockPut  bool // Put hangs until the context expires
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{blobs: map[string][]byte{}}
}

func (f *fakeRemote) Put(ctx context.Context, path string, data []byte) error {
	if f.blockPut {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.putErr != nil {
		return f.putErr
	}
	f.blobs[path] = data
	return nil
}

func (f *fakeRemote) Get(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no such blob: %s", path)
	}
	return data, nil
}

func (f *fakeRemote) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.blobs[path]
	return ok, nil
}

func (f *fakeRemote) Size(ctx context.Context, path string) (int64, error) {
	data, ok := f.blobs[path]
	if !ok {
		return 0, fmt.Errorf("no such blob: %s", path)
	}
	return int64(len(data)), nil
}

func (f *fakeRemote) Delete(ctx context.Context, path string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.blobs, path)
	return nil
}

type backupTestEnv struct {
	db         *sqlite.DB
	repo       repository.BackupRepository
	local      *storage.LocalDisk
	remote     *fakeRemote
	dumper     *fakeDumper
	archiver   *fakeArchiver
	backupDir  string
	stagingDir string
	service    *BackupService
}

func setupBackupEnv(t *testing.T) *backupTestEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backupDir := t.TempDir()
	stagingDir := filepath.Join(t.TempDir(), "staging")

	repo := sqlite.NewBackupRepository(db)
	local := storage.NewLocalDisk(backupDir)
	remote := newFakeRemote()
	dumper := &fakeDumper{content: "CREATE TABLE accreditations (id INT);\n"}
	archiver := &fakeArchiver{real: archive.NewZipArchiver()}

	svc := NewBackupService(
		repo,
		storage.NewResolver(local, remote),
		local,
		dumper,
		archiver,
		dump.ConnectionParams{Host: "127.0.0.1", Port: 3306, User: "backup", Password: "pw", Database: "acredita"},
		stagingDir,
		time.Minute,
		zerolog.Nop(),
	)

	return &backupTestEnv{
		db:         db,
		repo:       repo,
		local:      local,
		remote:     remote,
		dumper:     dumper,
		archiver:   archiver,
		backupDir:  backupDir,
		stagingDir: stagingDir,
		service:    svc,
	}
}

func TestCreateLocalBackupSucceeds(t *testing.T) {
	env := setupBackupEnv(t)
	ctx := context.Background()

	user := "admin"
	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, &user)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if backup.Status != domain.BackupStatusCompleted {
		t.Fatalf("expected completed, got %s", backup.Status)
	}
	if backup.FilePath == nil || *backup.FilePath != backup.Filename {
		t.Errorf("expected file path %q, got %v", backup.Filename, backup.FilePath)
	}
	if backup.FileSize == nil || *backup.FileSize == 0 {
		t.Error("expected a non-zero file size")
	}
	if backup.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if backup.ErrorMessage != nil {
		t.Errorf("completed backup must not carry an error message, got %q", *backup.ErrorMessage)
	}

	// The archive is a valid zip in the serving directory.
	archivePath := filepath.Join(env.backupDir, backup.Filename)
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("archive is not a valid zip: %v", err)
	}
	r.Close()

	// The intermediate dump is gone from staging.
	if _, err := os.Stat(filepath.Join(env.stagingDir, backup.ID+".sql")); !os.IsNotExist(err) {
		t.Error("intermediate dump should be removed after a successful run")
	}

	// The persisted record matches the terminal state.
	stored, err := env.repo.FindByID(ctx, backup.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.Status != domain.BackupStatusCompleted {
		t.Errorf("stored status is %s", stored.Status)
	}
	if stored.CreatedBy == nil || *stored.CreatedBy != "admin" {
		t.Errorf("expected created_by admin, got %v", stored.CreatedBy)
	}
}

func TestCreateBackupDumpFailure(t *testing.T) {
	env := setupBackupEnv(t)
	env.dumper.err = errors.New("dump tool exited with code 2")
	env.dumper.output = "Access denied for user"
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 ServiceError, got %v", err)
	}

	if backup == nil {
		t.Fatal("the failed record should still be returned")
	}
	if backup.Status != domain.BackupStatusFailed {
		t.Errorf("expected failed, got %s", backup.Status)
	}
	if backup.ErrorMessage == nil || !strings.Contains(*backup.ErrorMessage, "Access denied") {
		t.Errorf("expected tool output in error message, got %v", backup.ErrorMessage)
	}
	if backup.FilePath != nil || backup.FileSize != nil || backup.CompletedAt != nil {
		t.Error("failed record must not carry completion fields")
	}

	// No stray archive.
	entries, _ := os.ReadDir(env.backupDir)
	if len(entries) != 0 {
		t.Errorf("no archive should exist after a dump failure, found %d entries", len(entries))
	}

	stored, err := env.repo.FindByID(ctx, backup.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.Status != domain.BackupStatusFailed {
		t.Errorf("stored status is %s", stored.Status)
	}
}

func TestCreateBackupArchiveFailureKeepsDumpFile(t *testing.T) {
	env := setupBackupEnv(t)
	env.archiver.err = errors.New("no space left on device")
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !hasCode(err, http.StatusInternalServerError) {
		t.Fatalf("expected 500 ServiceError, got %v", err)
	}
	if backup.Status != domain.BackupStatusFailed {
		t.Fatalf("expected failed, got %s", backup.Status)
	}
	if backup.ErrorMessage == nil || !strings.Contains(*backup.ErrorMessage, "no space left on device") {
		t.Errorf("expected archiver error in message, got %v", backup.ErrorMessage)
	}

	// The dump stays in staging for operator inspection.
	if _, statErr := os.Stat(filepath.Join(env.stagingDir, backup.ID+".sql")); statErr != nil {
		t.Error("dump file should be kept when archiving fails")
	}
	// No half-written archive in the serving directory.
	entries, _ := os.ReadDir(env.backupDir)
	if len(entries) != 0 {
		t.Errorf("no archive should exist after an archiver failure, found %d entries", len(entries))
	}

	stored, err := env.repo.FindByID(ctx, backup.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.Status != domain.BackupStatusFailed {
		t.Errorf("stored status is %s", stored.Status)
	}
}

func TestCreateRemoteBackupSucceeds(t *testing.T) {
	env := setupBackupEnv(t)
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeScheduled, domain.StorageDiskRemote, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if backup.Status != domain.BackupStatusCompleted {
		t.Fatalf("expected completed, got %s", backup.Status)
	}
	if _, ok := env.remote.blobs[backup.Filename]; !ok {
		t.Error("archive should be uploaded to the remote backend")
	}

	// Nothing left in staging after a successful upload.
	if _, err := os.Stat(filepath.Join(env.stagingDir, backup.Filename)); !os.IsNotExist(err) {
		t.Error("staged archive should be removed after upload")
	}
	// Nothing in the local serving directory either.
	entries, _ := os.ReadDir(env.backupDir)
	if len(entries) != 0 {
		t.Error("remote backups must not land in the local serving directory")
	}
}

func TestCreateRemoteBackupUploadFailureKeepsStagingFile(t *testing.T) {
	env := setupBackupEnv(t)
	env.remote.putErr = errors.New("connection refused")
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskRemote, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if backup.Status != domain.BackupStatusFailed {
		t.Fatalf("expected failed, got %s", backup.Status)
	}
	if backup.ErrorMessage == nil || !strings.Contains(*backup.ErrorMessage, "upload failed") {
		t.Errorf("unexpected error message: %v", backup.ErrorMessage)
	}

	// The staged archive may be the only copy; it stays for the operator.
	if _, statErr := os.Stat(filepath.Join(env.stagingDir, backup.Filename)); statErr != nil {
		t.Error("staged archive should be kept when the upload failed")
	}
}

func TestCreateRemoteBackupUploadTimeout(t *testing.T) {
	env := setupBackupEnv(t)
	env.remote.blockPut = true
	env.service.uploadTimeout = 50 * time.Millisecond
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskRemote, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !hasCode(err, http.StatusInternalServerError) {
		t.Fatalf("expected 500 ServiceError, got %v", err)
	}
	if backup.Status != domain.BackupStatusFailed {
		t.Fatalf("a stalled upload must not leave the record in %s", backup.Status)
	}
	if backup.ErrorMessage == nil || !strings.Contains(*backup.ErrorMessage, "timed out") {
		t.Errorf("expected an upload-timeout message, got %v", backup.ErrorMessage)
	}

	// The staged archive stays, same as any other upload failure.
	if _, statErr := os.Stat(filepath.Join(env.stagingDir, backup.Filename)); statErr != nil {
		t.Error("staged archive should be kept when the upload timed out")
	}
}

func TestOpenDownload(t *testing.T) {
	env := setupBackupEnv(t)
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, data, err := env.service.OpenDownload(ctx, backup.ID)
	if err != nil {
		t.Fatalf("OpenDownload failed: %v", err)
	}
	if got.ID != backup.ID {
		t.Errorf("wrong record returned")
	}
	if len(data) == 0 {
		t.Error("expected archive bytes")
	}
}

func TestOpenDownloadUnavailableStates(t *testing.T) {
	env := setupBackupEnv(t)
	ctx := context.Background()

	// Unknown ID
	if _, _, err := env.service.OpenDownload(ctx, "no-such-id"); !hasCode(err, http.StatusNotFound) {
		t.Errorf("unknown id: expected 404, got %v", err)
	}

	// Failed record
	env.dumper.err = errors.New("boom")
	failed, _ := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if _, _, err := env.service.OpenDownload(ctx, failed.ID); !hasCode(err, http.StatusNotFound) {
		t.Errorf("failed record: expected 404, got %v", err)
	}
	env.dumper.err = nil

	// Completed record whose blob disappeared
	gone, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	os.Remove(filepath.Join(env.backupDir, gone.Filename))
	if _, _, err := env.service.OpenDownload(ctx, gone.ID); !hasCode(err, http.StatusNotFound) {
		t.Errorf("missing blob: expected 404, got %v", err)
	}

	// Completed record whose blob is zero bytes
	empty, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.backupDir, empty.Filename), nil, 0o640); err != nil {
		t.Fatalf("failed to truncate blob: %v", err)
	}
	if _, _, err := env.service.OpenDownload(ctx, empty.ID); !hasCode(err, http.StatusUnprocessableEntity) {
		t.Errorf("empty blob: expected 422, got %v", err)
	}
}

func TestDeleteBackupRemovesBlobThenRow(t *testing.T) {
	env := setupBackupEnv(t)
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskLocal, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := env.service.Delete(ctx, backup.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(env.backupDir, backup.Filename)); !os.IsNotExist(statErr) {
		t.Error("blob should be gone")
	}
	if _, err := env.repo.FindByID(ctx, backup.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("row should be gone, got %v", err)
	}
}

func TestDeleteBackupKeepsRowWhenBlobDeleteFails(t *testing.T) {
	env := setupBackupEnv(t)
	ctx := context.Background()

	backup, err := env.service.Create(ctx, domain.BackupTypeManual, domain.StorageDiskRemote, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	env.remote.deleteErr = errors.New("service unavailable")
	if err := env.service.Delete(ctx, backup.ID); err == nil {
		t.Fatal("expected error when the blob delete fails")
	}

	// Metadata survives so the state stays inspectable.
	if _, err := env.repo.FindByID(ctx, backup.ID); err != nil {
		t.Errorf("row should survive a failed blob delete, got %v", err)
	}
}

func hasCode(err error, code int) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}
