// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/nyx/internal/util"
)

func serveStateBox(t *testing.T, sb *util.StateBox, budgetFile string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/api/state-box/status", StateBoxStatusHandler(sb, budgetFile))

	req, err := http.NewRequest(http.MethodGet, "/api/state-box/status", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestStateBoxStatusHandler_Success(t *testing.T) {
	tempDir := t.TempDir()
	sb, err := util.NewStateBoxAt(tempDir)
	if err != nil {
		t.Fatalf("Failed to create StateBox: %v", err)
	}
	sb.SetReadOnly(false)

	budgetPath := filepath.Join(tempDir, "budget.json")
	if err := os.WriteFile(budgetPath, []byte(`{"spent": 0}`), 0o600); err != nil {
		t.Fatalf("Failed to create budget file: %v", err)
	}

	w := serveStateBox(t, sb, budgetPath)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, w.Code)
	}

	var status StateBoxStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status.RootPath != tempDir {
		t.Errorf("Expected root path %s, got %s", tempDir, status.RootPath)
	}
	if status.ReadOnly {
		t.Error("Expected read-only to be false")
	}
	if status.BudgetFile == nil || !status.BudgetFile.Exists {
		t.Fatal("Expected budget file to be reported as existing")
	}
	if status.PermissionStatus != "ok" {
		t.Errorf("Expected permission status 'ok', got '%s'", status.PermissionStatus)
	}
}

func TestStateBoxStatusHandler_PermissiveBudgetFile(t *testing.T) {
	tempDir := t.TempDir()
	sb, err := util.NewStateBoxAt(tempDir)
	if err != nil {
		t.Fatalf("Failed to create StateBox: %v", err)
	}

	budgetPath := filepath.Join(tempDir, "budget.json")
	if err := os.WriteFile(budgetPath, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("Failed to create budget file: %v", err)
	}
	if err := os.Chmod(budgetPath, 0o644); err != nil {
		t.Fatalf("Failed to chmod budget file: %v", err)
	}

	var status StateBoxStatus
	if err := json.Unmarshal(serveStateBox(t, sb, budgetPath).Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status.PermissionStatus != "warning" {
		t.Errorf("Expected permission status 'warning', got '%s'", status.PermissionStatus)
	}
	if len(status.Warnings) != 1 {
		t.Errorf("Expected one warning, got %v", status.Warnings)
	}
}

func TestStateBoxStatusHandler_ReadOnlyMode(t *testing.T) {
	sb, err := util.NewStateBoxAt(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Failed to create StateBox: %v", err)
	}
	sb.SetReadOnly(true)

	w := serveStateBox(t, sb, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
	}

	var status StateBoxStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !status.ReadOnly {
		t.Error("Expected read-only to be true")
	}
	if status.BudgetFile != nil {
		t.Error("Expected no budget file for an in-memory governor")
	}
	if status.PermissionStatus != "warning" {
		t.Errorf("Expected a warning for a missing state directory, got '%s'", status.PermissionStatus)
	}
}

func TestStateBoxStatusHandler_NilStateBox(t *testing.T) {
	w := serveStateBox(t, nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}
