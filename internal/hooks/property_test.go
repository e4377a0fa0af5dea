// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gopkg.in/yaml.v3"
)

func TestProperty_HookExecution(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("matching events consistently trigger hooks", prop.ForAll(
		func(percentage int, eventType string) bool {
			tmpDir := t.TempDir()
			evt := HookEvent(eventType)

			hook := Hook{
				ID:        "prop-hook",
				Name:      "Prop Hook",
				Event:     evt,
				Condition: "Data.percentage > 80",
				Action:    "custom_action",
				Enabled:   true,
			}
			data, _ := yaml.Marshal(hook)
			if err := os.WriteFile(filepath.Join(tmpDir, "hook.yaml"), data, 0644); err != nil {
				return false
			}

			bus := NewEventBus()
			defer bus.Shutdown()

			manager, err := NewHookManager(tmpDir, bus)
			if err != nil {
				return false
			}
			triggered := make(chan struct{}, 1)
			manager.RegisterAction("custom_action", func(h *Hook, ctx *EventContext) error {
				triggered <- struct{}{}
				return nil
			})
			if err := manager.LoadHooks(); err != nil {
				return false
			}
			manager.SubscribeToAllEvents()

			bus.Publish(NewEvent(evt, map[string]any{"percentage": percentage}))

			fired := false
			select {
			case <-triggered:
				fired = true
			case <-time.After(50 * time.Millisecond):
			}
			return fired == (percentage > 80)
		},
		gen.IntRange(60, 100),
		gen.OneConstOf("budget_warning", "budget_critical", "route_failed"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_SubscribeOnce(t *testing.T) {
	tmpDir := t.TempDir()
	content := "id: once\nname: Once\nevent: route_received\naction: count\nenabled: true\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "once.yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	bus := NewEventBus()
	defer bus.Shutdown()
	manager, err := NewHookManager(tmpDir, bus)
	if err != nil {
		t.Fatal(err)
	}

	var runs int32
	done := make(chan struct{}, 4)
	manager.RegisterAction("count", func(h *Hook, ctx *EventContext) error {
		atomic.AddInt32(&runs, 1)
		done <- struct{}{}
		return nil
	})
	if err := manager.LoadHooks(); err != nil {
		t.Fatal(err)
	}
	manager.SubscribeToAllEvents()
	manager.SubscribeToAllEvents()

	bus.Publish(NewEvent(EventRouteReceived, nil))
	<-done
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("Expected hook to run once, ran %d times", got)
	}
}
