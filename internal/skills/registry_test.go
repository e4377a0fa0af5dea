// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skills

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/nyx/internal/hooks"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*hooks.EventContext
}

func (p *recordingPublisher) Publish(ctx *hooks.EventContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ctx)
}

func (p *recordingPublisher) PublishAsync(ctx *hooks.EventContext) { p.Publish(ctx) }

func (p *recordingPublisher) snapshot() []*hooks.EventContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*hooks.EventContext(nil), p.events...)
}

func echoSkill(name string, triggers ...string) *Func {
	return &Func{
		Desc: Descriptor{Name: name, Description: "echo", Triggers: triggers},
		Fn: func(_ context.Context, query string, sc Context) (any, error) {
			return map[string]any{"query": query, "user": sc.UserID}, nil
		},
	}
}

func writeSkill(t *testing.T, root, dir, manifest, handler string) {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "SKILL.md"), []byte(manifest), 0644))
	if handler != "" {
		require.NoError(t, os.WriteFile(filepath.Join(path, "handler.lua"), []byte(handler), 0644))
	}
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSkill("calendar")))

	exec := r.Execute(context.Background(), "calendar", "reunión mañana", Context{UserID: "u1"})
	require.True(t, exec.Success, exec.Error)
	assert.Equal(t, "calendar", exec.Skill)
	assert.Equal(t, map[string]any{"query": "reunión mañana", "user": "u1"}, exec.Result)

	stats := r.UsageStats()
	assert.Equal(t, int64(1), stats["calendar"].Calls)
	assert.Equal(t, int64(0), stats["calendar"].Failures)
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSkill("calendar")))

	assert.Error(t, r.Register(echoSkill("calendar")), "duplicate")
	assert.Error(t, r.Register(echoSkill("Not A Slug")))
	assert.Error(t, r.Register(nil))

	bad := echoSkill("strict")
	bad.Desc.Validate = "len(query) >"
	assert.Error(t, r.Register(bad))
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	exec := r.Execute(context.Background(), "missing", "q", Context{})
	assert.False(t, exec.Success)
	assert.Equal(t, "skill not found: missing", exec.Error)
	assert.Empty(t, r.UsageStats())
}

func TestRegistry_ExecuteFailures(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(WithEvents(pub))

	require.NoError(t, r.Register(&Func{
		Desc: Descriptor{Name: "broken"},
		Fn: func(context.Context, string, Context) (any, error) {
			return nil, errors.New("backend down")
		},
	}))
	require.NoError(t, r.Register(&Func{
		Desc: Descriptor{Name: "panicky"},
		Fn: func(context.Context, string, Context) (any, error) {
			panic("boom")
		},
	}))

	exec := r.Execute(context.Background(), "broken", "q", Context{UserID: "u"})
	assert.False(t, exec.Success)
	assert.Equal(t, "backend down", exec.Error)
	assert.EqualError(t, exec.Err, "backend down")

	exec = r.Execute(context.Background(), "panicky", "q", Context{})
	assert.False(t, exec.Success)
	assert.Contains(t, exec.Error, "boom")

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, hooks.EventSkillFailed, events[0].Event)
	assert.Equal(t, "broken", events[0].Skill)
	assert.Equal(t, "u", events[0].UserID)
	assert.Equal(t, "backend down", events[0].ErrorMessage)

	assert.Equal(t, int64(1), r.UsageStats()["panicky"].Failures)
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSkill("echo")))

	strict := echoSkill("strict")
	strict.Desc.Validate = `len(query) >= 5 && user_id != ""`
	require.NoError(t, r.Register(strict))

	exec := r.Execute(context.Background(), "echo", "   ", Context{})
	assert.False(t, exec.Success)
	assert.Contains(t, exec.Error, "invalid input")

	exec = r.Execute(context.Background(), "strict", "hola", Context{UserID: "u"})
	assert.False(t, exec.Success)

	exec = r.Execute(context.Background(), "strict", "hola mundo", Context{})
	assert.False(t, exec.Success)

	exec = r.Execute(context.Background(), "strict", "hola mundo", Context{UserID: "u"})
	assert.True(t, exec.Success, exec.Error)
}

func TestRegistry_ListAndTriggers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSkill("weather", "clima", "pronóstico")))
	require.NoError(t, r.Register(echoSkill("calendar", "reunión", "cita")))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "calendar", list[0].Name)
	assert.Equal(t, "weather", list[1].Name)

	assert.Equal(t, "calendar", r.FindByTrigger("Tengo una REUNIÓN"))
	assert.Equal(t, "weather", r.FindByTrigger("¿cómo está el clima?"))
	assert.Equal(t, "", r.FindByTrigger("hola"))
	assert.True(t, r.Has("weather"))
	assert.False(t, r.Has("news"))
}

func TestParseManifest(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "calendar", `---
name: calendar
description: Books meetings
version: 1.0.0
triggers: [reunión, cita]
validate: len(query) > 3
---
# Calendar

Free-form docs with --- rulers.
`, "")

	desc, err := ParseManifest(filepath.Join(root, "calendar", "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "calendar", desc.Name)
	assert.Equal(t, "Books meetings", desc.Description)
	assert.Equal(t, []string{"reunión", "cita"}, desc.Triggers)
	assert.Equal(t, "len(query) > 3", desc.Validate)
	assert.Equal(t, filepath.Join(root, "calendar"), desc.Dir)

	writeSkill(t, root, "noname", "---\ndescription: x\n---\n", "")
	desc, err = ParseManifest(filepath.Join(root, "noname", "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "noname", desc.Name)

	writeSkill(t, root, "bom", "\uFEFF---\nname: bom\ndescription: saved by notepad\n---\n", "")
	desc, err = ParseManifest(filepath.Join(root, "bom", "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "bom", desc.Name)
	assert.Equal(t, "saved by notepad", desc.Description)

	writeSkill(t, root, "plain", "# no frontmatter\n", "")
	_, err = ParseManifest(filepath.Join(root, "plain", "SKILL.md"))
	assert.Error(t, err)
}

func TestRegistry_LoadAll(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "calendar", "---\nname: calendar\ndescription: cal\n---\n",
		`function execute(query, ctx) return { booked = true, user = ctx.user_id } end`)
	writeSkill(t, root, "remote", "---\nname: remote\nkind: webhook\nurl: https://skills.example.com/remote\n---\n", "")
	writeSkill(t, root, "badkind", "---\nname: badkind\nkind: wasm\n---\n", "")
	writeSkill(t, root, "broken", "---\nname: broken\n---\n", "function execute(")
	writeSkill(t, root, "echo", "---\nname: echo\n---\n", `function execute(q) return q end`)

	r := NewRegistry()
	require.NoError(t, r.Register(echoSkill("echo")))

	n, err := r.LoadAll(root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, r.Has("calendar"))
	assert.True(t, r.Has("remote"))
	assert.False(t, r.Has("badkind"))
	assert.False(t, r.Has("broken"))

	// The Go-registered echo skill wins over the manifest.
	exec := r.Execute(context.Background(), "echo", "hi", Context{UserID: "u"})
	require.True(t, exec.Success)
	assert.IsType(t, map[string]any{}, exec.Result)

	exec = r.Execute(context.Background(), "calendar", "reunión", Context{UserID: "u9"})
	require.True(t, exec.Success, exec.Error)
	assert.Equal(t, map[string]any{"booked": true, "user": "u9"}, exec.Result)

	// Reloading drops skills whose manifests disappeared.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "remote")))
	n, err = r.LoadAll(root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, r.Has("remote"))
	assert.True(t, r.Has("echo"))
}

func TestRegistry_LoadAllMissingDir(t *testing.T) {
	r := NewRegistry()
	_, err := r.LoadAll("")
	assert.Error(t, err)
	_, err = r.LoadAll(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRegistry_ConcurrentExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSkill("echo")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec := r.Execute(context.Background(), "echo", "q", Context{})
			assert.True(t, exec.Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), r.UsageStats()["echo"].Calls)
}

func TestRegistry_LoadsShippedExamples(t *testing.T) {
	r := NewRegistry()
	n, err := r.LoadAll(filepath.Join("..", "..", "examples", "skills"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "calendar", r.FindByTrigger("mueve mi reunión"))

	exec := r.Execute(context.Background(), "calendar", "agendar cita mañana", Context{UserID: "u1", Level: 1})
	require.True(t, exec.Success, exec.Error)
	result, ok := exec.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "create_event", result["action"])
	assert.Equal(t, "tomorrow", result["range"])

	exec = r.Execute(context.Background(), "calendar", "qué hay", Context{
		Level:          2,
		StructuredData: map[string]any{"intent": "find_free_slots"},
	})
	require.True(t, exec.Success, exec.Error)
	assert.Equal(t, "find_free_slots", exec.Result.(map[string]any)["action"])

	exec = r.Execute(context.Background(), "calendar", "   ", Context{})
	assert.False(t, exec.Success)
}
