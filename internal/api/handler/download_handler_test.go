package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acredita/respaldo/internal/core/domain"
)

func TestDownloadWithSession(t *testing.T) {
	env := setupTestEnv(t)
	token := env.tokenFor(t, "admin", "admin-password")

	b := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)

	w := env.request(t, http.MethodGet, "/backups/download/"+b.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("expected application/zip, got %s", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "attachment") || !strings.Contains(cd, b.Filename) {
		t.Errorf("unexpected content disposition: %s", cd)
	}
	if w.Body.Len() == 0 {
		t.Error("expected archive bytes in the body")
	}
}

func TestDownloadAuthPredicate(t *testing.T) {
	env := setupTestEnv(t)
	b := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)
	viewerToken := env.tokenFor(t, "viewer", "viewer-password")

	// Both credential paths enforce the same predicate.
	tests := []struct {
		name     string
		path     string
		token    string
		expected int
	}{
		{"session route without token", "/backups/download/" + b.ID, "", http.StatusUnauthorized},
		{"session route with viewer role", "/backups/download/" + b.ID, viewerToken, http.StatusForbidden},
		{"query route without token", "/backups/download-public/" + b.ID, "", http.StatusUnauthorized},
		{"query route with garbage token", "/backups/download-public/" + b.ID + "?token=garbage", "", http.StatusUnauthorized},
		{"query route with viewer role", "/backups/download-public/" + b.ID + "?token=" + viewerToken, "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodGet, tt.path, tt.token, nil)
			if w.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestDownloadWithQueryToken(t *testing.T) {
	env := setupTestEnv(t)
	token := env.tokenFor(t, "admin", "admin-password")

	b := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)

	w := env.request(t, http.MethodGet, "/backups/download-public/"+b.ID+"?token="+token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.Len() == 0 {
		t.Error("expected archive bytes")
	}
}

func TestDownloadWithGrantIsSingleUse(t *testing.T) {
	env := setupTestEnv(t)

	b := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)
	grant, err := env.authService.IssueDownloadGrant(context.Background(), b.ID, "admin")
	if err != nil {
		t.Fatalf("failed to issue grant: %v", err)
	}

	// No session needed: the grant is the credential.
	w := env.request(t, http.MethodGet, "/download-backup/"+b.ID+"?grant="+grant.Token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The grant was burned on first use.
	w = env.request(t, http.MethodGet, "/download-backup/"+b.ID+"?grant="+grant.Token, "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("second use: expected 401, got %d", w.Code)
	}
}

func TestDownloadWithGrantRejections(t *testing.T) {
	env := setupTestEnv(t)

	a := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)
	b := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)

	grantForA, err := env.authService.IssueDownloadGrant(context.Background(), a.ID, "admin")
	if err != nil {
		t.Fatalf("failed to issue grant: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing grant", "/download-backup/" + a.ID},
		{"unknown grant", "/download-backup/" + a.ID + "?grant=bogus"},
		{"grant for another backup", "/download-backup/" + b.ID + "?grant=" + grantForA.Token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodGet, tt.path, "", nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestDownloadUnavailableArchives(t *testing.T) {
	env := setupTestEnv(t)
	token := env.tokenFor(t, "admin", "admin-password")

	// Missing blob
	gone := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)
	if err := env.local.Delete(context.Background(), gone.Filename); err != nil {
		t.Fatalf("failed to remove blob: %v", err)
	}
	w := env.request(t, http.MethodGet, "/backups/download/"+gone.ID, token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing blob: expected 404, got %d", w.Code)
	}

	// Zero-byte blob is never served as a successful download.
	empty := env.seedCompletedBackup(t, domain.BackupTypeManual, time.Hour)
	if err := os.WriteFile(filepath.Join(env.backupDir, empty.Filename), nil, 0o640); err != nil {
		t.Fatalf("failed to truncate blob: %v", err)
	}
	w = env.request(t, http.MethodGet, "/backups/download/"+empty.ID, token, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty blob: expected 422, got %d", w.Code)
	}

	// Unknown record
	w = env.request(t, http.MethodGet, "/backups/download/no-such-id", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown record: expected 404, got %d", w.Code)
	}
}
