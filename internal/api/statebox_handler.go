// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/nyx/internal/util"
)

// StateBoxStatus describes the state directory and the budget record in it.
type StateBoxStatus struct {
	RootPath         string      `json:"root_path"`
	ReadOnly         bool        `json:"read_only"`
	BudgetFile       *FileStatus `json:"budget_file,omitempty"`
	PermissionStatus string      `json:"permission_status"` // "ok", "warning", "error"
	Warnings         []string    `json:"warnings"`
	Errors           []string    `json:"errors"`
}

// FileStatus represents the status of a State Box file.
type FileStatus struct {
	Path    string    `json:"path"`
	Exists  bool      `json:"exists"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode,omitempty"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

func getFileStatus(path string) *FileStatus {
	status := &FileStatus{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return status
	}
	status.Exists = true
	status.Size = info.Size()
	status.Mode = info.Mode().String()
	status.ModTime = info.ModTime()
	return status
}

// StateBoxStatusHandler serves GET /api/state-box/status. budgetFile may be
// empty when the governor keeps its record in memory.
func StateBoxStatusHandler(sb *util.StateBox, budgetFile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sb == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state box not initialized"})
			return
		}

		status := &StateBoxStatus{
			RootPath:         sb.RootPath(),
			ReadOnly:         sb.IsReadOnly(),
			PermissionStatus: "ok",
			Warnings:         []string{},
			Errors:           []string{},
		}

		if _, err := os.Stat(sb.RootPath()); err != nil {
			if os.IsNotExist(err) {
				status.Warnings = append(status.Warnings, "state directory does not exist")
				status.PermissionStatus = "warning"
			} else {
				status.Errors = append(status.Errors, "failed to access state directory")
				status.PermissionStatus = "error"
			}
		}

		if budgetFile != "" {
			status.BudgetFile = getFileStatus(budgetFile)
			if info, err := os.Stat(budgetFile); err == nil && info.Mode().Perm()&0o077 != 0 {
				status.Warnings = append(status.Warnings, "budget file has overly permissive permissions")
				if status.PermissionStatus == "ok" {
					status.PermissionStatus = "warning"
				}
			}
		}

		c.JSON(http.StatusOK, status)
	}
}
