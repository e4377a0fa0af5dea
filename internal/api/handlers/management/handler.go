// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package management serves the read-only operator endpoints under
// /v0/management.
package management

import (
	"github.com/traylinx/nyx/internal/budget"
	"github.com/traylinx/nyx/internal/router"
	"github.com/traylinx/nyx/internal/skills"
)

// SkillSource lists skills and their usage.
type SkillSource interface {
	List() []skills.Descriptor
	UsageStats() map[string]skills.Usage
}

// LedgerSource exposes the budget ledger.
type LedgerSource interface {
	Status() budget.Status
	RecentTransactions(n int) []budget.Transaction
}

// StatsSource reports routing counters.
type StatsSource interface {
	Stats() router.Stats
}

// Handler aggregates the management endpoints. Any source may be nil, in
// which case its endpoints answer 503.
type Handler struct {
	skills SkillSource
	ledger LedgerSource
	stats  StatsSource
}

// NewHandler creates a management handler.
func NewHandler(s SkillSource, l LedgerSource, st StatsSource) *Handler {
	return &Handler{skills: s, ledger: l, stats: st}
}
