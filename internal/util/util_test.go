// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStateBox_DefaultPath(t *testing.T) {
	t.Setenv("NYX_STATE_DIR", "")
	t.Setenv("NYX_READONLY", "")

	sb, err := NewStateBox()
	if err != nil {
		t.Fatalf("NewStateBox() failed: %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to get home directory: %v", err)
	}
	expected := filepath.Join(home, ".nyx")

	if sb.RootPath() != expected {
		t.Errorf("Expected root path %s, got %s", expected, sb.RootPath())
	}
	if sb.IsReadOnly() {
		t.Error("Expected read-only to be false by default")
	}
}

func TestNewStateBox_EnvVarOverride(t *testing.T) {
	customDir := t.TempDir()
	t.Setenv("NYX_STATE_DIR", customDir)
	t.Setenv("NYX_READONLY", "1")

	sb, err := NewStateBox()
	if err != nil {
		t.Fatalf("NewStateBox() failed: %v", err)
	}

	if sb.RootPath() != customDir {
		t.Errorf("Expected root path %s, got %s", customDir, sb.RootPath())
	}
	if !sb.IsReadOnly() {
		t.Error("Expected read-only mode from NYX_READONLY=1")
	}
}

func TestStateBox_ResolvePath(t *testing.T) {
	root := t.TempDir()
	sb, err := NewStateBoxAt(root)
	if err != nil {
		t.Fatalf("NewStateBoxAt() failed: %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty returns root", "", root},
		{"relative joins root", "budget.json", filepath.Join(root, "budget.json")},
		{"absolute is kept", "/var/lib/nyx/budget.json", "/var/lib/nyx/budget.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sb.ResolvePath(tt.in); got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "nested", "state.json")

	sb, err := NewStateBoxAt(tempDir)
	if err != nil {
		t.Fatalf("NewStateBoxAt() failed: %v", err)
	}
	sb.SetReadOnly(false)

	payload := map[string]any{"spent": 1.5}
	if err := WriteJSONAtomic(sb, target, payload, false); err != nil {
		t.Fatalf("WriteJSONAtomic() failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	var decoded map[string]float64
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Invalid JSON written: %v", err)
	}
	if decoded["spent"] != 1.5 {
		t.Errorf("Expected spent 1.5, got %v", decoded["spent"])
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "state.json" {
			t.Errorf("Unexpected file in directory: %s", entry.Name())
		}
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestWriteAtomic_ReadOnlyMode(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "test.txt")

	sb, err := NewStateBoxAt(tempDir)
	if err != nil {
		t.Fatalf("NewStateBoxAt() failed: %v", err)
	}
	sb.SetReadOnly(true)

	err = WriteAtomic(sb, target, []byte("x"), false)
	if !errors.Is(err, ErrReadOnlyMode) {
		t.Errorf("Expected ErrReadOnlyMode, got %v", err)
	}
	if _, err := os.Stat(target); err == nil {
		t.Error("File should not exist in read-only mode")
	}
}

func TestWriteAtomic_Archive(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "budget.json")

	if err := os.WriteFile(target, []byte("old"), 0600); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := WriteAtomic(nil, target, []byte("new"), true); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}

	backup, err := os.ReadFile(target + BackupSuffix)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != "old" {
		t.Errorf("Expected backup content 'old', got %q", backup)
	}
}

func TestIsValidSkillID(t *testing.T) {
	valid := []string{"calendar", "web-search", "skill2"}
	invalid := []string{"", "Calendar", "web search", "../etc", "a--b"}

	for _, id := range valid {
		if !IsValidSkillID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if IsValidSkillID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestWriteAtomic_ArchiveWithoutPrevious(t *testing.T) {
	target := filepath.Join(t.TempDir(), "budget.json")

	if err := WriteAtomic(nil, target, []byte("first"), true); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}
	if _, err := os.Stat(target + BackupSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no backup for a new file, got %v", err)
	}
}
