// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/nyx/internal/logging"
	"github.com/traylinx/nyx/internal/router"
)

// QueryRequest is the body of POST /api/query. userId is accepted for
// older clients.
type QueryRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	UserIDOld string `json:"userId"`
}

func (r QueryRequest) user() string {
	switch {
	case r.UserID != "":
		return r.UserID
	case r.UserIDOld != "":
		return r.UserIDOld
	default:
		return router.DefaultUserID
	}
}

func (s *Server) health(c *gin.Context) {
	now := s.now()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      now.UTC().Format(time.RFC3339),
		"uptime_seconds": now.Sub(s.started).Seconds(),
	})
}

func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}

	ctx := c.Request.Context()
	logging.FromContext(ctx).Infof("query received from %s", req.user())

	result := s.deps.Router.Route(ctx, req.Message, req.user())
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      result,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listSkills(c *gin.Context) {
	list := s.deps.Skills.List()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"skills": list,
			"count":  len(list),
		},
	})
}

func (s *Server) budgetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    s.deps.Budget.Status(),
	})
}
