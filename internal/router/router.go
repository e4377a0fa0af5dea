// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the three-tier query router.
//
// A query is first matched against local intent patterns (tier 1). If no
// confident intent maps to a skill, a trigger-phrase test picks between the
// reasoning API (tier 2) and paid web search (tier 3). Tier 3 holds a budget
// reservation for the duration of the search call.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/budget"
	"github.com/traylinx/nyx/internal/hooks"
	"github.com/traylinx/nyx/internal/intent"
	"github.com/traylinx/nyx/internal/logging"
	"github.com/traylinx/nyx/internal/reasoning"
	"github.com/traylinx/nyx/internal/search"
	"github.com/traylinx/nyx/internal/skills"
)

const (
	DefaultUserID         = "anonymous"
	DefaultTier1Threshold = 0.8
	DefaultTimeout        = 30 * time.Second

	typeText         = "text"
	typeSearchResult = "search_result"
)

// DefaultWebSearchTriggers are the phrases that send a query to tier 3.
var DefaultWebSearchTriggers = []string{
	"qué es", "quién es", "cuál es",
	"noticias", "último", "reciente",
	"información sobre", "datos de",
	"precio de", "cotización",
	"weather in", "clima en",
	"latest", "news about",
}

// DefaultIntentSkills maps intents to the skill that serves them at tier 1.
// Intents absent from the table have no tier-1 skill.
func DefaultIntentSkills() map[string]string {
	return map[string]string{
		intent.Calendar: "calendar",
	}
}

// Classifier scores a query against the known intents.
type Classifier interface {
	Classify(query string) intent.Result
}

// SkillExecutor runs a named skill.
type SkillExecutor interface {
	Execute(ctx context.Context, name, query string, sc skills.Context) skills.Execution
}

// ReasoningClient is the tier-2 collaborator.
type ReasoningClient interface {
	Analyze(ctx context.Context, query, userID string) (*reasoning.Analysis, error)
}

// SearchClient is the tier-3 collaborator.
type SearchClient interface {
	Search(ctx context.Context, query, userID string) (*search.Response, error)
	EstimateCost(resp *search.Response) float64
}

// requestEstimator is implemented by search clients that can price a query
// before sending it.
type requestEstimator interface {
	EstimateRequestCost(query string) float64
}

// BudgetGate guards tier-3 spend.
type BudgetGate interface {
	Reserve(estimate float64) (*budget.Reservation, error)
	Commit(res *budget.Reservation, actual float64, details map[string]any) error
	Release(res *budget.Reservation)
}

// Config tunes routing. Zero values take the defaults.
type Config struct {
	Tier1Threshold float64
	Timeout        time.Duration
	// WebSearchTriggers are added to DefaultWebSearchTriggers.
	WebSearchTriggers []string
	// IntentSkills overrides DefaultIntentSkills; an empty value unmaps an intent.
	IntentSkills map[string]string
}

// Deps are the router's collaborators. Reasoning and Search may be nil, in
// which case their tier fails with a configuration error.
type Deps struct {
	Classifier Classifier
	Skills     SkillExecutor
	Reasoning  ReasoningClient
	Search     SearchClient
	Budget     BudgetGate
	Events     hooks.Publisher
}

// Stats counts routed queries.
type Stats struct {
	Total          int64 `json:"total"`
	Tier1          int64 `json:"tier1"`
	Tier2          int64 `json:"tier2"`
	Tier3          int64 `json:"tier3"`
	Failures       int64 `json:"failures"`
	BudgetRefusals int64 `json:"budget_refusals"`
	Errors         int64 `json:"errors"`
}

// Router routes queries. It is safe for concurrent use.
type Router struct {
	threshold    float64
	timeout      time.Duration
	triggers     []string
	intentSkills map[string]string
	deps         Deps

	nTotal, nTier1, nTier2, nTier3 atomic.Int64
	nFailures, nRefusals, nErrors  atomic.Int64
}

// New builds a router. Classifier, Skills and Budget are required.
func New(cfg Config, deps Deps) (*Router, error) {
	if deps.Classifier == nil {
		return nil, errors.New("router: classifier is required")
	}
	if deps.Skills == nil {
		return nil, errors.New("router: skill executor is required")
	}
	if deps.Budget == nil {
		return nil, errors.New("router: budget gate is required")
	}

	r := &Router{
		threshold:    cfg.Tier1Threshold,
		timeout:      cfg.Timeout,
		intentSkills: DefaultIntentSkills(),
		deps:         deps,
	}
	if r.threshold <= 0 || r.threshold > 1 {
		r.threshold = DefaultTier1Threshold
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}

	seen := make(map[string]struct{})
	for _, t := range append(append([]string{}, DefaultWebSearchTriggers...), cfg.WebSearchTriggers...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}
		r.triggers = append(r.triggers, t)
	}

	for in, skill := range cfg.IntentSkills {
		if skill == "" {
			delete(r.intentSkills, in)
			continue
		}
		r.intentSkills[in] = skill
	}
	return r, nil
}

// Triggers returns the active web-search trigger phrases.
func (r *Router) Triggers() []string {
	return append([]string(nil), r.triggers...)
}

// IntentSkills returns the active intent to skill table.
func (r *Router) IntentSkills() map[string]string {
	out := make(map[string]string, len(r.intentSkills))
	for k, v := range r.intentSkills {
		out[k] = v
	}
	return out
}

// NeedsWebSearch reports whether query contains a web-search trigger phrase.
func (r *Router) NeedsWebSearch(query string) bool {
	q := strings.ToLower(query)
	for _, t := range r.triggers {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// SkillForIntent returns the skill mapped to in.
func (r *Router) SkillForIntent(in string) (string, bool) {
	skill, ok := r.intentSkills[in]
	return skill, ok && skill != ""
}

// Route resolves query on the cheapest tier able to answer it. It never
// returns nil and never panics.
func (r *Router) Route(ctx context.Context, query, userID string) (res *Result) {
	start := time.Now()
	if userID == "" {
		userID = DefaultUserID
	}
	entry := logging.FromContext(ctx).WithField("user", userID)

	defer func() {
		if rec := recover(); rec != nil {
			entry.Errorf("routing failed: %v", rec)
			res = failure(LevelError, fmt.Sprintf("routing failed: %v", rec))
		}
		res.LatencyMS = time.Since(start).Milliseconds()
		r.finish(entry, query, userID, res)
	}()

	r.publish(hooks.EventRouteReceived, userID, map[string]any{"query": query})

	// Nothing to classify, so the query belongs to the reasoning tier; it is
	// rejected there without spending a call.
	if strings.TrimSpace(query) == "" {
		return failure(Level2, "empty query")
	}

	cls := r.deps.Classifier.Classify(query)
	entry.WithFields(log.Fields{"intent": cls.Intent, "confidence": cls.Confidence}).Debug("query classified")

	switch {
	case cls.Intent != "" && cls.Confidence >= r.threshold:
		if skill, ok := r.SkillForIntent(cls.Intent); ok {
			res = r.tier1(ctx, query, userID, cls, skill)
		} else {
			res = r.tier2(ctx, query, userID)
		}
	case r.NeedsWebSearch(query):
		res = r.tier3(ctx, query, userID)
	default:
		res = r.tier2(ctx, query, userID)
	}

	res.Intent = cls.Intent
	res.Confidence = cls.Confidence
	return res
}

func (r *Router) tier1(ctx context.Context, query, userID string, cls intent.Result, skill string) *Result {
	sc := skills.Context{UserID: userID, Intent: cls.Intent, Level: int(Level1)}
	exec, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) (skills.Execution, error) {
		return r.deps.Skills.Execute(ctx, skill, query, sc), nil
	})
	if err != nil {
		exec = skills.Execution{Success: false, Skill: skill, Error: fmt.Sprintf("skill %s: %v", skill, err)}
	}
	return fromExecution(exec, Level1, MethodLocalClassification)
}

func (r *Router) tier2(ctx context.Context, query, userID string) *Result {
	if r.deps.Reasoning == nil {
		return failure(Level2, "reasoning tier not configured")
	}

	analysis, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) (*reasoning.Analysis, error) {
		return r.deps.Reasoning.Analyze(ctx, query, userID)
	})
	if err != nil {
		return failure(Level2, err.Error())
	}
	if analysis == nil {
		return failure(Level2, "reasoning returned no analysis")
	}

	if analysis.SkillRequired && analysis.SkillName != "" {
		sc := skills.Context{
			UserID:            userID,
			Level:             int(Level2),
			ReasoningAnalysis: analysis.Map(),
			StructuredData:    analysis.StructuredData,
		}
		exec, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) (skills.Execution, error) {
			return r.deps.Skills.Execute(ctx, analysis.SkillName, query, sc), nil
		})
		if err != nil {
			exec = skills.Execution{Success: false, Skill: analysis.SkillName, Error: fmt.Sprintf("skill %s: %v", analysis.SkillName, err)}
		}
		res := fromExecution(exec, Level2, MethodReasoningWithSkill)
		res.BudgetExceeded = errors.Is(exec.Err, budget.ErrBudgetExhausted)
		res.Analysis = analysis
		return res
	}

	return &Result{
		Success: true,
		Level:   Level2,
		Method:  MethodReasoningDirect,
		Result: DirectAnswer{
			Response: analysis.Response,
			Type:     typeText,
			Analysis: analysis,
		},
	}
}

func (r *Router) tier3(ctx context.Context, query, userID string) *Result {
	if r.deps.Search == nil {
		return failure(Level3, "search tier not configured")
	}

	w := webSearch{client: r.deps.Search, budget: r.deps.Budget, timeout: r.timeout}
	answer, err := w.run(ctx, query, userID)
	if err != nil {
		res := failure(Level3, err.Error())
		res.BudgetExceeded = errors.Is(err, budget.ErrBudgetExhausted)
		return res
	}

	return &Result{
		Success: true,
		Level:   Level3,
		Method:  MethodWebSearch,
		Result:  answer,
	}
}

func fromExecution(exec skills.Execution, level Level, method Method) *Result {
	res := &Result{
		Success: exec.Success,
		Level:   level,
		Method:  method,
		Skill:   exec.Skill,
	}
	if exec.Success {
		res.Result = exec.Result
	} else {
		res.Error = exec.Error
		if res.Error == "" {
			res.Error = "skill failed"
		}
	}
	return res
}

func (r *Router) finish(entry *log.Entry, query, userID string, res *Result) {
	r.nTotal.Add(1)
	switch {
	case res.Level == LevelError:
		r.nErrors.Add(1)
	case res.Level == Level1:
		r.nTier1.Add(1)
	case res.Level == Level2:
		r.nTier2.Add(1)
	case res.Level == Level3:
		r.nTier3.Add(1)
	}
	if res.BudgetExceeded {
		r.nRefusals.Add(1)
	}

	entry = entry.WithFields(log.Fields{
		"level":  res.Level.String(),
		"method": string(res.Method),
		"intent": res.Intent,
	})

	data := map[string]any{
		"query":           query,
		"level":           int(res.Level),
		"method":          string(res.Method),
		"intent":          res.Intent,
		"confidence":      res.Confidence,
		"skill":           res.Skill,
		"success":         res.Success,
		"budget_exceeded": res.BudgetExceeded,
		"latency_ms":      res.LatencyMS,
	}

	if res.Success {
		entry.Infof("query routed in %dms", res.LatencyMS)
		r.publish(hooks.EventRoutingDecision, userID, data)
		return
	}

	r.nFailures.Add(1)
	entry.Warnf("query failed: %s", res.Error)
	r.publish(hooks.EventRoutingDecision, userID, data)
	data["error"] = res.Error
	r.publish(hooks.EventRouteFailed, userID, data)
}

func (r *Router) publish(event hooks.HookEvent, userID string, data map[string]any) {
	if r.deps.Events == nil {
		return
	}
	evt := hooks.NewEvent(event, data)
	evt.UserID = userID
	if skill, ok := data["skill"].(string); ok {
		evt.Skill = skill
	}
	if msg, ok := data["error"].(string); ok {
		evt.ErrorMessage = msg
	}
	r.deps.Events.PublishAsync(evt)
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() Stats {
	return Stats{
		Total:          r.nTotal.Load(),
		Tier1:          r.nTier1.Load(),
		Tier2:          r.nTier2.Load(),
		Tier3:          r.nTier3.Load(),
		Failures:       r.nFailures.Load(),
		BudgetRefusals: r.nRefusals.Load(),
		Errors:         r.nErrors.Load(),
	}
}

// callWithTimeout runs fn under a deadline. A collaborator that ignores its
// context is abandoned when the deadline passes. Panics are re-raised on the
// calling goroutine.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val      T
		err      error
		panicked any
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{panicked: p}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}()

	timedOut := func() bool { return errors.Is(ctx.Err(), context.DeadlineExceeded) }

	select {
	case o := <-done:
		if o.panicked != nil {
			panic(o.panicked)
		}
		if o.err != nil && timedOut() {
			return o.val, fmt.Errorf("timed out after %s", d)
		}
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		if timedOut() {
			return zero, fmt.Errorf("timed out after %s", d)
		}
		return zero, ctx.Err()
	}
}
