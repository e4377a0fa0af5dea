// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/traylinx/nyx/internal/config"
	"github.com/traylinx/nyx/internal/hooks"
	"github.com/traylinx/nyx/internal/util"
)

func newHooksCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect automation hooks",
	}
	c.AddCommand(newHooksListCommand(), newHooksTestCommand())
	return c
}

// hookManager loads hooks without starting the router. The caller must
// shut the returned bus down.
func hookManager(cfg *config.Config) (*hooks.HookManager, *hooks.EventBus, error) {
	sb, err := util.NewStateBoxAt(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	bus := hooks.NewEventBus()
	manager, err := hooks.NewHookManager(sb.ResolvePath(orDefault(cfg.Hooks.Dir, "hooks")), bus)
	if err != nil {
		bus.Shutdown()
		return nil, nil, err
	}
	if err := manager.LoadHooks(); err != nil {
		bus.Shutdown()
		return nil, nil, err
	}
	return manager, bus, nil
}

func newHooksListCommand() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "list",
		Short: "List enabled hooks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(stderr)
			if err != nil {
				return err
			}
			manager, bus, err := hookManager(cfg)
			if err != nil {
				return err
			}
			defer bus.Shutdown()

			out := cmd.OutOrStdout()
			all := manager.Hooks()
			if asJSON {
				return printJSON(out, all)
			}
			if len(all) == 0 {
				fmt.Fprintln(out, "No hooks configured.")
				fmt.Fprintf(out, "Create hook files in: %s\n", manager.HooksDir())
				return nil
			}

			fmt.Fprintf(out, "Hooks Directory: %s\n", manager.HooksDir())
			fmt.Fprintf(out, "Total Hooks: %d\n\n", len(all))
			for i, h := range all {
				printHook(out, i+1, h)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return c
}

func printHook(out io.Writer, n int, h *hooks.Hook) {
	fmt.Fprintf(out, "[%d] %s\n", n, h.Name)
	fmt.Fprintf(out, "    ID: %s\n", h.ID)
	fmt.Fprintf(out, "    Event: %s\n", h.Event)
	fmt.Fprintf(out, "    Action: %s\n", h.Action)
	if h.Condition != "" {
		fmt.Fprintf(out, "    Condition: %s\n", h.Condition)
	}
	if h.Description != "" {
		fmt.Fprintf(out, "    Description: %s\n", h.Description)
	}
	fmt.Fprintf(out, "    File: %s\n\n", h.FilePath)
}

func newHooksTestCommand() *cobra.Command {
	var (
		event string
		data  string
		id    string
	)
	c := &cobra.Command{
		Use:   "test",
		Short: "Show which hooks would fire for a simulated event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(stderr)
			if err != nil {
				return err
			}
			manager, bus, err := hookManager(cfg)
			if err != nil {
				return err
			}
			defer bus.Shutdown()

			var payload map[string]any
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return fmt.Errorf("parsing --data: %w", err)
			}
			evt := hooks.NewEvent(hooks.HookEvent(event), payload)
			if v, ok := payload["user_id"].(string); ok {
				evt.UserID = v
			}
			if v, ok := payload["skill"].(string); ok {
				evt.Skill = v
			}

			candidates := manager.Hooks()
			if id != "" {
				h := manager.Hook(id)
				if h == nil {
					return fmt.Errorf("hook %q not found", id)
				}
				candidates = []*hooks.Hook{h}
			}

			return reportHookTest(cmd.OutOrStdout(), manager, candidates, evt)
		},
	}
	c.Flags().StringVar(&event, "event", string(hooks.EventRoutingDecision), "event type")
	c.Flags().StringVar(&data, "data", "{}", "JSON event data")
	c.Flags().StringVar(&id, "id", "", "test a single hook")
	return c
}

func reportHookTest(out io.Writer, manager *hooks.HookManager, candidates []*hooks.Hook, evt *hooks.EventContext) error {
	fmt.Fprintf(out, "Event: %s\n\n", evt.Event)
	matched, failed := 0, 0
	for _, h := range candidates {
		ok, err := manager.Matches(h, evt)
		switch {
		case h.Event != evt.Event:
			fmt.Fprintf(out, "  - %s: event mismatch (expects %s)\n", h.ID, h.Event)
		case err != nil:
			failed++
			fmt.Fprintf(out, "  ! %s: condition failed: %v\n", h.ID, err)
		case ok:
			matched++
			fmt.Fprintf(out, "  + %s: would run %s\n", h.ID, h.Action)
		default:
			fmt.Fprintf(out, "  - %s: condition not met\n", h.ID)
		}
	}
	fmt.Fprintf(out, "\nTested: %d  Matched: %d  Failed: %d\n", len(candidates), matched, failed)
	return nil
}
