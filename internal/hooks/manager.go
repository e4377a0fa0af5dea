// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/util"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 100 * time.Millisecond

// HookManager manages the lifecycle and execution of automation hooks.
type HookManager struct {
	hooksDir       string
	hooks          map[HookEvent][]*Hook
	eventBus       *EventBus
	programs       map[string]*vm.Program
	actionHandlers map[HookAction]ActionHandler
	mu             sync.RWMutex

	subscribeOnce sync.Once
	watcher       *fsnotify.Watcher
	stopWatcher   chan struct{}
	stopOnce      sync.Once
}

// NewHookManager creates a new hook manager. An empty hooksDir defaults to ~/.nyx/hooks.
func NewHookManager(hooksDir string, eventBus *EventBus) (*HookManager, error) {
	if eventBus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if hooksDir == "" {
		hooksDir = "~/.nyx/hooks"
	}
	dir, err := util.ExpandPath(hooksDir)
	if err != nil {
		return nil, err
	}

	manager := &HookManager{
		hooksDir:       dir,
		hooks:          make(map[HookEvent][]*Hook),
		eventBus:       eventBus,
		programs:       make(map[string]*vm.Program),
		actionHandlers: make(map[HookAction]ActionHandler),
		stopWatcher:    make(chan struct{}),
	}

	RegisterBuiltInActions(manager)

	return manager, nil
}

// LoadHooks loads all enabled hooks from the hooks directory, replacing the
// current set. Unreadable files and hooks whose condition does not compile
// are skipped with a log line.
func (m *HookManager) LoadHooks() error {
	if err := os.MkdirAll(m.hooksDir, 0755); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}

	newHooks := make(map[HookEvent][]*Hook)
	newPrograms := make(map[string]*vm.Program)
	loaded := 0

	err := filepath.Walk(m.hooksDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !(strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Errorf("failed to read hook file %s: %v", path, err)
			return nil
		}

		var hook Hook
		if err := yaml.Unmarshal(data, &hook); err != nil {
			log.Errorf("failed to parse hook %s: %v", path, err)
			return nil
		}
		if !hook.Enabled {
			return nil
		}
		if hook.Event == "" || hook.Action == "" {
			log.Warnf("hook %s is missing event or action, skipping", path)
			return nil
		}

		if cond := strings.TrimSpace(hook.Condition); cond != "" && cond != "true" {
			program, err := expr.Compile(cond, expr.AsBool())
			if err != nil {
				log.Errorf("invalid condition in hook %s: %v", path, err)
				return nil
			}
			newPrograms[cond] = program
		}

		hook.FilePath = path
		if hook.ID == "" {
			hook.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		newHooks[hook.Event] = append(newHooks[hook.Event], &hook)
		loaded++
		log.Debugf("loaded hook: %s for event %s", hook.Name, hook.Event)
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.hooks = newHooks
	m.programs = newPrograms
	m.mu.Unlock()

	log.Infof("loaded %d hooks for %d event types", loaded, len(newHooks))
	return nil
}

// SubscribeToAllEvents subscribes the manager to every published event.
// Hooks are looked up at dispatch time, so reloads need no resubscription.
func (m *HookManager) SubscribeToAllEvents() {
	m.subscribeOnce.Do(func() {
		for _, evt := range AllEvents() {
			m.eventBus.Subscribe(evt, m.handleEvent)
		}
	})
}

func (m *HookManager) handleEvent(ctx *EventContext) {
	m.mu.RLock()
	hooks := m.hooks[ctx.Event]
	m.mu.RUnlock()

	for _, hook := range hooks {
		matches, err := m.evaluateCondition(hook.Condition, ctx)
		if err != nil {
			log.Warnf("failed to evaluate hook condition '%s': %v", hook.Condition, err)
			continue
		}
		if matches {
			log.Infof("executing hook: %s (action: %s)", hook.Name, hook.Action)
			go m.executeAction(hook, ctx)
		}
	}
}

// Matches reports whether hook would fire for ctx. It ignores Enabled and
// does not run the action.
func (m *HookManager) Matches(hook *Hook, ctx *EventContext) (bool, error) {
	if hook == nil || ctx == nil || hook.Event != ctx.Event {
		return false, nil
	}
	return m.evaluateCondition(hook.Condition, ctx)
}

func (m *HookManager) evaluateCondition(condition string, ctx *EventContext) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" || condition == "true" {
		return true, nil
	}

	m.mu.Lock()
	program, exists := m.programs[condition]
	if !exists {
		var err error
		program, err = expr.Compile(condition, expr.AsBool())
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
		m.programs[condition] = program
	}
	m.mu.Unlock()

	env := map[string]any{
		"Event":     string(ctx.Event),
		"Timestamp": ctx.Timestamp,
		"Data":      ctx.Data,
		"UserID":    ctx.UserID,
		"Skill":     ctx.Skill,
		"Error":     ctx.ErrorMessage,
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean")
	}
	return result, nil
}

func (m *HookManager) executeAction(hook *Hook, ctx *EventContext) {
	m.mu.RLock()
	handler, exists := m.actionHandlers[hook.Action]
	m.mu.RUnlock()

	if !exists {
		log.Warnf("no handler registered for action: %s", hook.Action)
		return
	}

	if err := handler(hook, ctx); err != nil {
		log.Errorf("action %s failed for hook %s: %v", hook.Action, hook.Name, err)
	}
}

// RegisterAction registers a handler for a specific action type.
func (m *HookManager) RegisterAction(action HookAction, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionHandlers[action] = handler
}

// StartWatcher starts a background fsnotify watcher for hot-reloading hooks.
func (m *HookManager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.hooksDir); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("hooks directory changed (%s), reloading", event.Name)
					time.Sleep(reloadDebounce)
					if err := m.LoadHooks(); err != nil {
						log.Errorf("failed to reload hooks: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("hooks watcher error: %v", err)
			case <-m.stopWatcher:
				return
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher.
func (m *HookManager) StopWatcher() {
	m.stopOnce.Do(func() {
		close(m.stopWatcher)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

// HooksDir returns the hooks directory path.
func (m *HookManager) HooksDir() string {
	return m.hooksDir
}

// Hooks returns all loaded hooks sorted by ID.
func (m *HookManager) Hooks() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Hook, 0)
	for _, hooks := range m.hooks {
		result = append(result, hooks...)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Hook returns a hook by ID, or nil.
func (m *HookManager) Hook(id string) *Hook {
	for _, h := range m.Hooks() {
		if h.ID == id {
			return h
		}
	}
	return nil
}
