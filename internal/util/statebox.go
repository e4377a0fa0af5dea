// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides utility functions shared by the Nyx packages.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StateBox manages the canonical state directory for Nyx.
// All mutable application data (the budget counter, hook and skill
// directories when left relative) is resolved against its root.
type StateBox struct {
	rootPath string
	readOnly bool
	mu       sync.RWMutex
}

// NewStateBox creates a new StateBox instance.
// It reads NYX_STATE_DIR and NYX_READONLY from environment variables.
// If NYX_STATE_DIR is not set, it defaults to ~/.nyx.
// If NYX_READONLY is set to "1", the StateBox operates in read-only mode.
func NewStateBox() (*StateBox, error) {
	return NewStateBoxAt(os.Getenv("NYX_STATE_DIR"))
}

// NewStateBoxAt creates a StateBox rooted at dir. An empty dir falls back to ~/.nyx.
func NewStateBoxAt(dir string) (*StateBox, error) {
	if dir == "" {
		dir = "~/.nyx"
	}

	resolvedPath, err := ExpandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}

	return &StateBox{
		rootPath: resolvedPath,
		readOnly: os.Getenv("NYX_READONLY") == "1",
	}, nil
}

// RootPath returns the resolved State Box root directory.
func (sb *StateBox) RootPath() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.rootPath
}

// IsReadOnly returns whether the State Box is in read-only mode.
func (sb *StateBox) IsReadOnly() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.readOnly
}

// SetReadOnly toggles read-only mode.
func (sb *StateBox) SetReadOnly(readOnly bool) {
	sb.mu.Lock()
	sb.readOnly = readOnly
	sb.mu.Unlock()
}

// ResolvePath joins a relative path with the State Box root.
// If the path is already absolute or starts with tilde, it is returned as-is after cleaning.
func (sb *StateBox) ResolvePath(relativePath string) string {
	if relativePath == "" {
		return sb.RootPath()
	}

	if strings.HasPrefix(relativePath, "~") || filepath.IsAbs(relativePath) {
		cleaned, err := ExpandPath(relativePath)
		if err != nil {
			return filepath.Clean(relativePath)
		}
		return cleaned
	}

	return filepath.Join(sb.RootPath(), relativePath)
}

// EnsureDir creates a directory with secure permissions (0700) if it doesn't exist.
func (sb *StateBox) EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// ExpandPath expands a leading tilde to the user's home directory and cleans the result.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
