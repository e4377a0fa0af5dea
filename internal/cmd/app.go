// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/budget"
	"github.com/traylinx/nyx/internal/config"
	"github.com/traylinx/nyx/internal/hooks"
	"github.com/traylinx/nyx/internal/intent"
	"github.com/traylinx/nyx/internal/reasoning"
	"github.com/traylinx/nyx/internal/router"
	"github.com/traylinx/nyx/internal/search"
	"github.com/traylinx/nyx/internal/skills"
	"github.com/traylinx/nyx/internal/util"
)

// app holds every wired component of a running nyx process.
type app struct {
	cfg        *config.Config
	stateBox   *util.StateBox
	bus        *hooks.EventBus
	hooks      *hooks.HookManager
	governor   *budget.Governor
	budgetFile string
	skills     *skills.Registry
	skillsDir  string
	router     *router.Router
}

// newApp wires the components described by cfg. Missing API keys disable
// the corresponding tier instead of failing.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	sb, err := util.NewStateBoxAt(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	if cfg.ReadOnly {
		sb.SetReadOnly(true)
	}
	if !sb.IsReadOnly() {
		if err := sb.EnsureDir(sb.RootPath()); err != nil {
			log.Warnf("state directory unavailable, continuing in memory: %v", err)
			sb.SetReadOnly(true)
		}
	}

	a := &app{cfg: cfg, stateBox: sb, bus: hooks.NewEventBus()}

	hooksDir := sb.ResolvePath(orDefault(cfg.Hooks.Dir, "hooks"))
	a.hooks, err = hooks.NewHookManager(hooksDir, a.bus)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("hooks: %w", err)
	}
	if err := a.hooks.LoadHooks(); err != nil {
		log.Warnf("failed to load hooks from %s: %v", hooksDir, err)
	}
	a.hooks.SubscribeToAllEvents()

	a.budgetFile = sb.ResolvePath(cfg.Budget.File)
	a.governor, err = budget.New(budget.Config{
		Limit:           cfg.Budget.Limit,
		Path:            a.budgetFile,
		SafetyMargin:    cfg.Budget.SafetyMargin,
		DefaultEstimate: cfg.Budget.DefaultEstimate,
	}, budget.WithStateBox(sb), budget.WithEventBus(a.bus))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("budget: %w", err)
	}

	classifier := intent.New()
	for name, patterns := range cfg.Router.IntentPatterns {
		for _, p := range patterns {
			if err := classifier.AddPattern(name, p); err != nil {
				a.close()
				return nil, fmt.Errorf("intent pattern for %s: %w", name, err)
			}
		}
	}

	a.skills = skills.NewRegistry(skills.WithEvents(a.bus))
	a.skillsDir = sb.ResolvePath(orDefault(cfg.Skills.Dir, "skills"))
	if _, err := a.skills.LoadAll(a.skillsDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Infof("no skills directory at %s", a.skillsDir)
		} else {
			log.Warnf("failed to load skills: %v", err)
		}
	}

	deps := router.Deps{
		Classifier: classifier,
		Skills:     a.skills,
		Budget:     a.governor,
		Events:     a.bus,
	}

	rc, err := reasoning.New(ctx, reasoning.Config{
		APIKey:  cfg.Reasoning.APIKey,
		Model:   cfg.Reasoning.Model,
		BaseURL: cfg.Reasoning.BaseURL,
	})
	switch {
	case err == nil:
		deps.Reasoning = rc
	case errors.Is(err, reasoning.ErrMissingAPIKey):
		log.Warn("GEMINI_API_KEY not set, reasoning tier disabled")
	default:
		a.close()
		return nil, fmt.Errorf("reasoning: %w", err)
	}

	sc, err := search.New(search.Config{
		APIKey:          cfg.Search.APIKey,
		BaseURL:         cfg.Search.BaseURL,
		Model:           cfg.Search.Model,
		InputRatePer1K:  cfg.Search.InputRatePer1K,
		OutputRatePer1K: cfg.Search.OutputRatePer1K,
		MinEstimate:     cfg.Budget.DefaultEstimate,
	})
	switch {
	case err == nil:
		deps.Search = sc
	case errors.Is(err, search.ErrMissingAPIKey):
		log.Warn("PERPLEXITY_API_KEY not set, search tier disabled")
	default:
		a.close()
		return nil, fmt.Errorf("search: %w", err)
	}

	// The reasoning prompt offers live-data questions to the search skill.
	if err := a.skills.Register(router.NewSearchSkill(deps.Search, a.governor, cfg.Router.Timeout)); err != nil {
		log.Warnf("built-in %s skill not registered: %v", router.SearchSkillName, err)
	}

	a.router, err = router.New(router.Config{
		Tier1Threshold:    cfg.Router.Tier1Threshold,
		Timeout:           cfg.Router.Timeout,
		WebSearchTriggers: cfg.Router.WebSearchTriggers,
		IntentSkills:      cfg.Router.IntentSkills,
	}, deps)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// startWatchers enables hot reload for hooks and skills when configured.
func (a *app) startWatchers() {
	if a.cfg.Hooks.Watch {
		if err := a.hooks.StartWatcher(); err != nil {
			log.Warnf("hooks watcher disabled: %v", err)
		}
	}
	if a.cfg.Skills.Watch {
		if err := a.skills.Watch(a.skillsDir); err != nil {
			log.Warnf("skills watcher disabled: %v", err)
		}
	}
}

func (a *app) close() {
	if a.skills != nil {
		a.skills.StopWatching()
	}
	if a.hooks != nil {
		a.hooks.StopWatcher()
	}
	if a.bus != nil {
		a.bus.Shutdown()
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
