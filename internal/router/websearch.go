// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/search"
	"github.com/traylinx/nyx/internal/skills"
)

// SearchSkillName is the skill the reasoning model names for questions that
// need live data.
const SearchSkillName = "perplexity"

// webSearch is the budget-gated search shared by tier 3 and the search
// skill: reserve the estimate, search, then commit the actual cost or
// release the hold.
type webSearch struct {
	client  SearchClient
	budget  BudgetGate
	timeout time.Duration
}

// run returns an error wrapping budget.ErrBudgetExhausted when the gate
// refuses the reservation.
func (w webSearch) run(ctx context.Context, query, userID string) (SearchAnswer, error) {
	var estimate float64
	if est, ok := w.client.(requestEstimator); ok {
		estimate = est.EstimateRequestCost(query)
	}

	hold, err := w.budget.Reserve(estimate)
	if err != nil {
		return SearchAnswer{}, err
	}

	resp, err := callWithTimeout(ctx, w.timeout, func(ctx context.Context) (*search.Response, error) {
		return w.client.Search(ctx, query, userID)
	})
	if err != nil || resp == nil {
		w.budget.Release(hold)
		if err == nil {
			err = errors.New("search returned no response")
		}
		return SearchAnswer{}, err
	}

	cost := w.client.EstimateCost(resp)
	if err := w.budget.Commit(hold, cost, map[string]any{
		"user_id":           userID,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}); err != nil {
		log.Warnf("failed to record search spend of $%.6f: %v", cost, err)
	}

	return SearchAnswer{
		Response:  resp.Answer,
		Sources:   resp.Sources,
		Citations: resp.Citations,
		Type:      typeSearchResult,
		Cost:      cost,
	}, nil
}

// NewSearchSkill wraps a search client as the SearchSkillName skill. Every
// call goes through gate exactly like a tier-3 search. A zero timeout uses
// DefaultTimeout; a nil client makes every call fail as not configured.
func NewSearchSkill(client SearchClient, gate BudgetGate, timeout time.Duration) skills.Skill {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	w := webSearch{client: client, budget: gate, timeout: timeout}
	return &skills.Func{
		Desc: skills.Descriptor{
			Name:        SearchSkillName,
			Description: "Real-time web search for current information, billed against the monthly budget",
			Version:     "1.0.0",
			Capability:  "web_search",
			Kind:        skills.KindBuiltin,
		},
		Fn: func(ctx context.Context, query string, sc skills.Context) (any, error) {
			if w.client == nil {
				return nil, errors.New("search tier not configured")
			}
			userID := sc.UserID
			if userID == "" {
				userID = DefaultUserID
			}
			return w.run(ctx, query, userID)
		},
	}
}
