// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHook(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestHookManager_LoadAndDispatch(t *testing.T) {
	tmpDir := t.TempDir()
	bus := NewEventBus()
	defer bus.Shutdown()

	manager, err := NewHookManager(tmpDir, bus)
	require.NoError(t, err)

	actionCalled := make(chan *EventContext, 1)
	manager.RegisterAction("test_action", func(hook *Hook, ctx *EventContext) error {
		actionCalled <- ctx
		return nil
	})

	writeHook(t, tmpDir, "tier3.yaml", `
id: "tier3-hook"
name: "Tier 3 decision"
event: "routing_decision"
condition: "Data.level == 3 && UserID != 'anonymous'"
action: "test_action"
enabled: true
`)
	writeHook(t, tmpDir, "disabled.yaml", `
id: "disabled"
event: "routing_decision"
action: "test_action"
enabled: false
`)
	writeHook(t, tmpDir, "broken.yaml", `
id: "broken"
event: "routing_decision"
condition: "Data.level >"
action: "test_action"
enabled: true
`)
	writeHook(t, tmpDir, "notes.txt", "ignored")

	require.NoError(t, manager.LoadHooks())
	manager.SubscribeToAllEvents()

	hooks := manager.Hooks()
	require.Len(t, hooks, 1)
	assert.Equal(t, "tier3-hook", hooks[0].ID)
	assert.NotNil(t, manager.Hook("tier3-hook"))
	assert.Nil(t, manager.Hook("broken"))

	match := NewEvent(EventRoutingDecision, map[string]any{"level": 3})
	match.UserID = "u1"
	bus.Publish(match)

	select {
	case got := <-actionCalled:
		assert.Equal(t, "u1", got.UserID)
	case <-time.After(time.Second):
		t.Fatal("Action was not called")
	}

	miss := NewEvent(EventRoutingDecision, map[string]any{"level": 2})
	miss.UserID = "u1"
	bus.Publish(miss)

	select {
	case <-actionCalled:
		t.Fatal("Action should not be called")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHookManager_DefaultIDFromFileName(t *testing.T) {
	tmpDir := t.TempDir()
	bus := NewEventBus()
	defer bus.Shutdown()

	writeHook(t, tmpDir, "budget-alert.yml", "event: budget_critical\naction: log_warning\nenabled: true\n")

	manager, err := NewHookManager(tmpDir, bus)
	require.NoError(t, err)
	require.NoError(t, manager.LoadHooks())

	require.NotNil(t, manager.Hook("budget-alert"))
	assert.Equal(t, tmpDir, manager.HooksDir())
}

func TestHookManager_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "hooks")
	bus := NewEventBus()
	defer bus.Shutdown()

	manager, err := NewHookManager(dir, bus)
	require.NoError(t, err)
	require.NoError(t, manager.LoadHooks())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestHookManager_RequiresBus(t *testing.T) {
	_, err := NewHookManager(t.TempDir(), nil)
	require.Error(t, err)
}

func TestHookManager_EvaluateCondition(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()
	manager, err := NewHookManager(t.TempDir(), bus)
	require.NoError(t, err)

	ctx := NewEvent(EventSkillFailed, map[string]any{"attempts": 2})
	ctx.Skill = "calendar"
	ctx.WithError(errTest)

	tests := []struct {
		condition string
		want      bool
		wantErr   bool
	}{
		{"", true, false},
		{"true", true, false},
		{"Skill == 'calendar'", true, false},
		{"Data.attempts >= 3", false, false},
		{"Error contains 'boom'", true, false},
		{"Event == 'skill_failed' && Skill == 'weather'", false, false},
		{"Data.attempts +", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			got, err := manager.evaluateCondition(tt.condition, ctx)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHookManager_Matches(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()
	manager, err := NewHookManager(t.TempDir(), bus)
	require.NoError(t, err)

	hook := &Hook{ID: "h", Event: EventRouteFailed, Condition: "Data.level == 3"}

	ok, err := manager.Matches(hook, NewEvent(EventRouteFailed, map[string]any{"level": 3}))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = manager.Matches(hook, NewEvent(EventRouteFailed, map[string]any{"level": 2}))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = manager.Matches(hook, NewEvent(EventRoutingDecision, map[string]any{"level": 3}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHookManager_Watcher(t *testing.T) {
	tmpDir := t.TempDir()
	bus := NewEventBus()
	defer bus.Shutdown()

	manager, err := NewHookManager(tmpDir, bus)
	require.NoError(t, err)
	require.NoError(t, manager.LoadHooks())
	require.NoError(t, manager.StartWatcher())
	defer manager.StopWatcher()

	writeHook(t, tmpDir, "late.yaml", "id: late\nevent: route_failed\naction: log_warning\nenabled: true\n")

	require.Eventually(t, func() bool {
		return manager.Hook("late") != nil
	}, 3*time.Second, 50*time.Millisecond)

	manager.StopWatcher()
	manager.StopWatcher()
}
