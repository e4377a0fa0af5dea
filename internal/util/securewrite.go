// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrReadOnlyMode is returned when a write is attempted while the state box
// is read-only.
var ErrReadOnlyMode = errors.New("read-only environment: write operations disabled")

// StateFilePerm is the mode of every file written under the state box.
const StateFilePerm os.FileMode = 0o600

// BackupSuffix is appended to a state file to name its archived copy.
const BackupSuffix = ".bak"

// WriteAtomic replaces path with data via a temp file, fsync and rename, so
// readers see either the old or the new content. With archive set, the
// current content (if any) is copied to path+BackupSuffix first.
func WriteAtomic(sb *StateBox, path string, data []byte, archive bool) error {
	if sb != nil && sb.IsReadOnly() {
		return ErrReadOnlyMode
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp := path + ".tmp." + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, StateFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if archive {
		archivePrevious(path)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			log.Debugf("directory sync failed for %s: %v", dir, err)
		}
		_ = d.Close()
	}
	return nil
}

// WriteJSONAtomic encodes v as indented JSON and writes it with WriteAtomic.
func WriteJSONAtomic(sb *StateBox, path string, v any, archive bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return WriteAtomic(sb, path, append(data, '\n'), archive)
}

func archivePrevious(path string) {
	prev, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("cannot archive %s: %v", path, err)
		}
		return
	}
	if err := os.WriteFile(path+BackupSuffix, prev, StateFilePerm); err != nil {
		log.Warnf("cannot archive %s: %v", path, err)
	}
}
