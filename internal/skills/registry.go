// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skills

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/hooks"
	"github.com/traylinx/nyx/internal/util"
)

// Usage counts executions of one skill.
type Usage struct {
	Calls    int64     `json:"calls"`
	Failures int64     `json:"failures"`
	LastUsed time.Time `json:"last_used"`
}

type entry struct {
	skill     Skill
	desc      Descriptor
	validator *vm.Program
	fromDisk  bool
}

// Registry maps skill names to skills. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	usage   map[string]*Usage
	events  hooks.Publisher

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
	stopOnce    sync.Once
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithEvents publishes skill_failed events to pub.
func WithEvents(pub hooks.Publisher) RegistryOption {
	return func(r *Registry) {
		r.events = pub
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:     make(map[string]*entry),
		usage:       make(map[string]*Usage),
		stopWatcher: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a skill. Names must be slugs and unique.
func (r *Registry) Register(s Skill) error {
	e, err := newEntry(s, false)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.desc.Name]; exists {
		return fmt.Errorf("skill already registered: %s", e.desc.Name)
	}
	r.entries[e.desc.Name] = e
	log.Debugf("skill registered: %s", e.desc.Name)
	return nil
}

func newEntry(s Skill, fromDisk bool) (*entry, error) {
	if s == nil {
		return nil, fmt.Errorf("skill is nil")
	}
	desc := s.Descriptor()
	if !util.IsValidSkillID(desc.Name) {
		return nil, fmt.Errorf("invalid skill name %q (must be slug-style)", desc.Name)
	}

	e := &entry{skill: s, desc: desc, fromDisk: fromDisk}
	if cond := strings.TrimSpace(desc.Validate); cond != "" {
		program, err := expr.Compile(cond, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("invalid validate expression for skill %s: %w", desc.Name, err)
		}
		e.validator = program
	}
	return e, nil
}

// Execute runs the named skill. Unknown skills, rejected input, skill
// errors and panics are all reported in the Execution, never returned.
func (r *Registry) Execute(ctx context.Context, name, query string, sc Context) (exec Execution) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return Execution{Success: false, Error: fmt.Sprintf("skill not found: %s", name)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("skill %s panicked: %v", name, rec)
			exec = Execution{Success: false, Skill: name, Error: fmt.Sprintf("skill panicked: %v", rec)}
		}
		r.track(name, exec, query, sc)
	}()

	if err := e.validate(query, sc); err != nil {
		return Execution{Success: false, Skill: name, Error: err.Error()}
	}

	result, err := e.skill.Execute(ctx, query, sc)
	if err != nil {
		return Execution{Success: false, Skill: name, Error: err.Error(), Err: err}
	}
	return Execution{Success: true, Skill: name, Result: result}
}

func (e *entry) validate(query string, sc Context) error {
	if e.validator == nil {
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("invalid input for skill %s: empty query", e.desc.Name)
		}
		return nil
	}

	env := map[string]any{
		"query":   query,
		"user_id": sc.UserID,
		"intent":  sc.Intent,
		"level":   sc.Level,
	}
	out, err := expr.Run(e.validator, env)
	if err != nil {
		return fmt.Errorf("invalid input for skill %s: %w", e.desc.Name, err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("invalid input for skill %s", e.desc.Name)
	}
	return nil
}

func (r *Registry) track(name string, exec Execution, query string, sc Context) {
	r.mu.Lock()
	u, ok := r.usage[name]
	if !ok {
		u = &Usage{}
		r.usage[name] = u
	}
	u.Calls++
	u.LastUsed = time.Now()
	if !exec.Success {
		u.Failures++
	}
	r.mu.Unlock()

	if exec.Success {
		return
	}
	log.Warnf("skill %s failed: %s", name, exec.Error)
	if r.events != nil {
		evt := hooks.NewEvent(hooks.EventSkillFailed, map[string]any{
			"query": query,
			"level": sc.Level,
		})
		evt.Skill = name
		evt.UserID = sc.UserID
		evt.ErrorMessage = exec.Error
		r.events.PublishAsync(evt)
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindByTrigger returns the first skill, by name, with a trigger phrase
// contained in query, or "".
func (r *Registry) FindByTrigger(query string) string {
	q := strings.ToLower(query)
	for _, d := range r.List() {
		for _, t := range d.Triggers {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" && strings.Contains(q, t) {
				return d.Name
			}
		}
	}
	return ""
}

// UsageStats returns a snapshot of per-skill usage.
func (r *Registry) UsageStats() map[string]Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Usage, len(r.usage))
	for k, v := range r.usage {
		out[k] = *v
	}
	return out
}

// LoadAll loads every <dir>/*/SKILL.md, replacing skills previously loaded
// from disk. Skills registered in Go are kept and win name clashes.
// Malformed manifests are skipped with a warning.
func (r *Registry) LoadAll(dir string) (int, error) {
	if dir == "" {
		return 0, fmt.Errorf("skills directory not specified")
	}
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("skills directory not accessible: %w", err)
	}

	log.Infof("loading skills from %s", dir)

	loaded := make(map[string]*entry)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), "SKILL.md") {
			return nil
		}

		s, err := LoadSkill(filepath.Dir(path))
		if err != nil {
			log.Warnf("skipping skill at %s: %v", path, err)
			return nil
		}
		e, err := newEntry(s, true)
		if err != nil {
			log.Warnf("skipping skill at %s: %v", path, err)
			return nil
		}
		if _, dup := loaded[e.desc.Name]; dup {
			log.Warnf("duplicate skill name %s at %s, skipping", e.desc.Name, path)
			return nil
		}
		loaded[e.desc.Name] = e
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk skills directory: %w", err)
	}

	r.mu.Lock()
	for name, e := range r.entries {
		if e.fromDisk {
			delete(r.entries, name)
		}
	}
	count := 0
	for name, e := range loaded {
		if _, taken := r.entries[name]; taken {
			log.Warnf("skill %s from %s shadowed by a built-in skill", name, e.desc.Dir)
			continue
		}
		r.entries[name] = e
		count++
	}
	r.mu.Unlock()

	log.Infof("loaded %d skills", count)
	return count, nil
}

// LoadSkill parses dir/SKILL.md and builds the skill it describes.
func LoadSkill(dir string) (Skill, error) {
	desc, err := ParseManifest(filepath.Join(dir, "SKILL.md"))
	if err != nil {
		return nil, err
	}

	switch desc.Kind {
	case KindLua, "":
		desc.Kind = KindLua
		return NewLuaSkill(desc)
	case KindWebhook:
		return NewWebhookSkill(desc)
	default:
		return nil, fmt.Errorf("unsupported skill kind %q", desc.Kind)
	}
}

// ParseManifest reads a SKILL.md file: YAML frontmatter between "---" lines
// followed by free-form documentation.
func ParseManifest(path string) (Descriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	text := strings.TrimLeft(string(content), "\uFEFF \t\r\n")
	if !strings.HasPrefix(text, "---") {
		return Descriptor{}, fmt.Errorf("missing frontmatter")
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return Descriptor{}, fmt.Errorf("unterminated frontmatter")
	}

	var desc Descriptor
	if err := yaml.Unmarshal([]byte(parts[1]), &desc); err != nil {
		return Descriptor{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	desc.Dir = filepath.Dir(path)
	if desc.Name == "" {
		desc.Name = filepath.Base(desc.Dir)
	}
	desc.Kind = strings.ToLower(strings.TrimSpace(desc.Kind))
	return desc, nil
}

// Watch reloads dir whenever a manifest or handler below it changes.
func (r *Registry) Watch(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addWatchDirs(watcher, dir); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				log.Infof("skills directory changed (%s), reloading", event.Name)
				time.Sleep(100 * time.Millisecond)
				if _, err := r.LoadAll(dir); err != nil {
					log.Errorf("failed to reload skills: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("skills watcher error: %v", err)
			case <-r.stopWatcher:
				return
			}
		}
	}()
	return nil
}

// StopWatching stops the watcher started by Watch.
func (r *Registry) StopWatching() {
	r.stopOnce.Do(func() {
		close(r.stopWatcher)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

func addWatchDirs(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
