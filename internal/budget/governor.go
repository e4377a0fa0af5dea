// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package budget enforces the monthly spending cap on the paid search tier.
//
// The Governor owns the persisted counter record and is its only writer.
// Callers either check-then-record (CanSpend, RecordUsage) or, when several
// searches may run at once, hold the estimate with Reserve and settle it with
// Commit or Release so in-flight calls count against the cap.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/hooks"
	"github.com/traylinx/nyx/internal/util"
)

const (
	DefaultLimit           = 5.00
	DefaultSafetyMargin    = 0.9
	DefaultEstimate        = 0.01
	DefaultMaxTransactions = 100

	criticalPercent = 90.0
	warningPercent  = 75.0
	moderatePercent = 50.0
)

// ErrBudgetExhausted is returned by Reserve when the estimate does not fit
// under the safety margin.
var ErrBudgetExhausted = errors.New("budget exhausted")

// Config controls the governor. Zero values take the defaults.
type Config struct {
	// Limit is the monthly cap in dollars.
	Limit float64
	// Path is the counter file. Empty keeps the record in memory only.
	Path string
	// SafetyMargin is the fraction of Limit that may actually be spent.
	SafetyMargin    float64
	DefaultEstimate float64
	MaxTransactions int
}

func (c *Config) sanitize() {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.SafetyMargin <= 0 || c.SafetyMargin > 1 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	if c.DefaultEstimate <= 0 {
		c.DefaultEstimate = DefaultEstimate
	}
	if c.MaxTransactions <= 0 {
		c.MaxTransactions = DefaultMaxTransactions
	}
}

// Option customises a Governor.
type Option func(*Governor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		if now != nil {
			g.now = now
		}
	}
}

// WithEventBus publishes budget alerts to bus.
func WithEventBus(bus hooks.Publisher) Option {
	return func(g *Governor) {
		g.events = bus
	}
}

// WithStateBox routes persistence through sb, honouring its read-only mode.
func WithStateBox(sb *util.StateBox) Option {
	return func(g *Governor) {
		g.stateBox = sb
	}
}

// Reservation is a hold on part of the remaining budget.
type Reservation struct {
	ID       string
	Estimate float64
}

// Status is a point-in-time report of the budget.
type Status struct {
	Limit          float64   `json:"limit"`
	Spent          float64   `json:"spent"`
	Reserved       float64   `json:"reserved"`
	Remaining      float64   `json:"remaining"`
	PercentageUsed float64   `json:"percentage_used"`
	RequestsCount  int       `json:"requests_count"`
	PeriodStart    time.Time `json:"period_start"`
	CanSpend       bool      `json:"can_spend"`
	Status         string    `json:"status"`
}

// Governor tracks spend against the monthly limit.
type Governor struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	holds    map[string]float64
	now      func() time.Time
	events   hooks.Publisher
	stateBox *util.StateBox
}

// New loads the persisted record at cfg.Path. A missing or unreadable file
// starts a fresh period; a record from a previous month is reset and saved.
func New(cfg Config, opts ...Option) (*Governor, error) {
	cfg.sanitize()

	g := &Governor{
		cfg:   cfg,
		holds: make(map[string]float64),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	now := g.now()
	g.state = freshState(cfg.Limit, now)

	if cfg.Path == "" {
		log.Debug("budget governor running without persistence")
		return g, nil
	}

	loaded, err := loadState(cfg.Path)
	switch {
	case err != nil:
		log.Warnf("budget state unreadable, starting fresh: %v", err)
	case loaded == nil:
	case !samePeriod(loaded.PeriodStart, now):
		log.Info("new billing period, resetting budget")
		if err := g.persistLocked(true); err != nil {
			log.Warnf("failed to persist budget reset: %v", err)
		}
	default:
		loaded.Limit = cfg.Limit
		g.state = *loaded
	}

	log.Infof("budget governor initialised - limit: $%.2f, spent: $%.4f", cfg.Limit, g.state.Spent)
	return g, nil
}

// Limit returns the configured monthly cap.
func (g *Governor) Limit() float64 {
	return g.cfg.Limit
}

// CanSpend reports whether spent + estimate fits under the safety margin.
// It never mutates state. A non-positive estimate uses the default estimate.
func (g *Governor) CanSpend(estimate float64) bool {
	if estimate <= 0 {
		estimate = g.cfg.DefaultEstimate
	}

	g.mu.Lock()
	spent := g.effectiveSpentLocked()
	g.mu.Unlock()

	ok := spent+estimate <= g.safetyLimit()
	if !ok {
		log.Warnf("insufficient budget: $%.4f spent, $%.4f required, limit: $%.4f", spent, estimate, g.safetyLimit())
	}
	return ok
}

// RecordUsage adds a completed spend. Non-positive costs are ignored.
func (g *Governor) RecordUsage(cost float64, details map[string]any) error {
	if cost <= 0 {
		return nil
	}

	g.mu.Lock()
	g.rolloverLocked()
	err := g.recordLocked(cost, details)
	spent := g.state.Spent
	g.mu.Unlock()

	g.checkAlerts(spent)
	return err
}

// Reserve holds estimate against the budget. It fails with
// ErrBudgetExhausted when spent plus outstanding holds plus estimate would
// exceed the safety margin.
func (g *Governor) Reserve(estimate float64) (*Reservation, error) {
	if estimate <= 0 {
		estimate = g.cfg.DefaultEstimate
	}

	g.mu.Lock()
	g.rolloverLocked()
	spent := g.state.Spent
	held := g.reservedLocked()
	if spent+held+estimate > g.safetyLimit() {
		g.mu.Unlock()

		log.Warnf("budget reservation refused: $%.4f spent, $%.4f held, $%.4f requested, limit: $%.4f",
			spent, held, estimate, g.safetyLimit())
		g.publish(hooks.EventBudgetExceeded, map[string]any{
			"spent":    spent,
			"reserved": held,
			"estimate": estimate,
			"limit":    g.cfg.Limit,
		})
		return nil, ErrBudgetExhausted
	}

	res := &Reservation{ID: uuid.NewString(), Estimate: estimate}
	g.holds[res.ID] = estimate
	g.mu.Unlock()

	return res, nil
}

// Commit settles a reservation with the actual cost. Each reservation can be
// settled once; committing it again is an error and records nothing.
func (g *Governor) Commit(res *Reservation, actual float64, details map[string]any) error {
	if res == nil {
		return fmt.Errorf("nil reservation")
	}

	g.mu.Lock()
	if _, ok := g.holds[res.ID]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("reservation %s not found or already settled", res.ID)
	}
	delete(g.holds, res.ID)

	g.rolloverLocked()
	var err error
	if actual > 0 {
		err = g.recordLocked(actual, details)
	}
	spent := g.state.Spent
	g.mu.Unlock()

	if actual > 0 {
		g.checkAlerts(spent)
	}
	return err
}

// Release drops a reservation without recording spend.
func (g *Governor) Release(res *Reservation) {
	if res == nil {
		return
	}
	g.mu.Lock()
	delete(g.holds, res.ID)
	g.mu.Unlock()
}

// Status reports the current budget.
func (g *Governor) Status() Status {
	g.mu.Lock()
	spent := g.effectiveSpentLocked()
	held := g.reservedLocked()
	st := g.state
	if !samePeriod(st.PeriodStart, g.now()) {
		st = freshState(g.cfg.Limit, g.now())
	}
	g.mu.Unlock()

	remaining := g.cfg.Limit - spent
	if remaining < 0 {
		remaining = 0
	}
	percentage := spent / g.cfg.Limit * 100

	return Status{
		Limit:          g.cfg.Limit,
		Spent:          spent,
		Reserved:       util.Round(held, 6),
		Remaining:      util.Round(remaining, 6),
		PercentageUsed: util.Round(percentage, 2),
		RequestsCount:  st.RequestsCount,
		PeriodStart:    st.PeriodStart,
		CanSpend:       spent+g.cfg.DefaultEstimate <= g.safetyLimit(),
		Status:         statusMessage(percentage),
	}
}

// Reset starts a new period now and persists it. Outstanding reservations
// are kept.
func (g *Governor) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = freshState(g.cfg.Limit, g.now())
	log.Info("budget manually reset")
	return g.persistLocked(true)
}

// RecentTransactions returns up to n of the latest transactions, oldest
// first. n <= 0 returns all of them.
func (g *Governor) RecentTransactions(n int) []Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !samePeriod(g.state.PeriodStart, g.now()) {
		return []Transaction{}
	}

	txs := g.state.Transactions
	if n > 0 && len(txs) > n {
		txs = txs[len(txs)-n:]
	}
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out
}

func (g *Governor) safetyLimit() float64 {
	return g.cfg.Limit * g.cfg.SafetyMargin
}

func (g *Governor) effectiveSpentLocked() float64 {
	if !samePeriod(g.state.PeriodStart, g.now()) {
		return 0
	}
	return g.state.Spent
}

func (g *Governor) reservedLocked() float64 {
	total := 0.0
	for _, v := range g.holds {
		total += v
	}
	return total
}

func (g *Governor) rolloverLocked() {
	now := g.now()
	if samePeriod(g.state.PeriodStart, now) {
		return
	}
	log.Info("new billing period, resetting budget")
	g.state = freshState(g.cfg.Limit, now)
	if err := g.persistLocked(true); err != nil {
		log.Warnf("failed to persist budget reset: %v", err)
	}
}

func (g *Governor) recordLocked(cost float64, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}

	g.state.Transactions = append(g.state.Transactions, Transaction{
		Timestamp: g.now(),
		Cost:      cost,
		Details:   details,
	})
	if over := len(g.state.Transactions) - g.cfg.MaxTransactions; over > 0 {
		g.state.Transactions = append([]Transaction(nil), g.state.Transactions[over:]...)
	}
	g.state.Spent = util.Round(g.state.Spent+cost, 6)
	g.state.RequestsCount++

	log.Infof("spend recorded: $%.4f - total: $%.4f", cost, g.state.Spent)
	return g.persistLocked(false)
}

// persistLocked saves the record. archive keeps the closed period's file
// next to it as a backup.
func (g *Governor) persistLocked(archive bool) error {
	if g.cfg.Path == "" {
		return nil
	}
	g.state.Limit = g.cfg.Limit
	if err := util.WriteJSONAtomic(g.stateBox, g.cfg.Path, g.state, archive); err != nil {
		if errors.Is(err, util.ErrReadOnlyMode) {
			log.Debug("read-only mode, budget state kept in memory")
			return nil
		}
		return fmt.Errorf("failed to persist budget state: %w", err)
	}
	return nil
}

func (g *Governor) checkAlerts(spent float64) {
	percentage := spent / g.cfg.Limit * 100
	data := map[string]any{
		"spent":      spent,
		"limit":      g.cfg.Limit,
		"percentage": util.Round(percentage, 2),
	}

	switch {
	case percentage >= criticalPercent:
		log.Warnf("budget alert: %.1f%% used ($%.4f/$%.2f)", percentage, spent, g.cfg.Limit)
		g.publish(hooks.EventBudgetCritical, data)
	case percentage >= warningPercent:
		log.Infof("budget %.1f%% used ($%.4f/$%.2f)", percentage, spent, g.cfg.Limit)
		g.publish(hooks.EventBudgetWarning, data)
	}
}

func (g *Governor) publish(event hooks.HookEvent, data map[string]any) {
	if g.events == nil {
		return
	}
	g.events.PublishAsync(hooks.NewEvent(event, data))
}

func statusMessage(percentage float64) string {
	switch {
	case percentage >= 100:
		return "exhausted"
	case percentage >= criticalPercent:
		return "critical"
	case percentage >= warningPercent:
		return "warning"
	case percentage >= moderatePercent:
		return "moderate"
	default:
		return "healthy"
	}
}
