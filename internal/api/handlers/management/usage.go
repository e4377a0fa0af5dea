// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package management

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/nyx/internal/budget"
)

const (
	defaultTransactions = 20
	maxTransactions     = 100
)

// GetRoutingStatistics returns the in-memory routing counters.
func (h *Handler) GetRoutingStatistics(c *gin.Context) {
	if h == nil || h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "router not available"})
		return
	}
	snapshot := h.stats.Stats()
	c.JSON(http.StatusOK, gin.H{
		"routing":         snapshot,
		"failed_requests": snapshot.Failures + snapshot.Errors,
	})
}

// GetTransactions handles GET /v0/management/budget/transactions?n=20.
func (h *Handler) GetTransactions(c *gin.Context) {
	if h == nil || h.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "budget not available"})
		return
	}

	n := defaultTransactions
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = min(parsed, maxTransactions)
	}

	txs := h.ledger.RecentTransactions(n)
	if txs == nil {
		txs = []budget.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       h.ledger.Status(),
		"transactions": txs,
		"count":        len(txs),
	})
}
