// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package skills holds the skill registry the router dispatches to.
//
// Skills are registered at startup, either in Go through Register or from
// SKILL.md manifests through LoadAll. A manifest describes a Lua handler run
// in a sandboxed interpreter or a remote webhook.
package skills

import (
	"context"
)

// Skill kinds accepted in SKILL.md manifests.
const (
	KindLua     = "lua"
	KindWebhook = "webhook"
)

// KindBuiltin marks skills registered from Go code.
const KindBuiltin = "builtin"

// Descriptor is the public description of a skill, parsed from the SKILL.md
// frontmatter for file-based skills.
type Descriptor struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Version     string   `yaml:"version" json:"version,omitempty"`
	Author      string   `yaml:"author" json:"author,omitempty"`
	Triggers    []string `yaml:"triggers" json:"triggers,omitempty"`
	Capability  string   `yaml:"capability" json:"capability,omitempty"`
	Kind        string   `yaml:"kind" json:"kind,omitempty"`
	// Entry is the Lua handler file, relative to the skill directory.
	Entry string `yaml:"entry" json:"-"`
	// URL is the webhook endpoint.
	URL            string `yaml:"url" json:"-"`
	TimeoutSeconds int    `yaml:"timeout-seconds" json:"-"`
	// Validate is an expr boolean over query, user_id, intent and level.
	Validate string `yaml:"validate" json:"-"`

	// Dir is the directory the manifest was loaded from.
	Dir string `yaml:"-" json:"-"`
}

// Context is what the router knows when it invokes a skill.
type Context struct {
	UserID            string         `json:"user_id"`
	Intent            string         `json:"intent,omitempty"`
	Level             int            `json:"level"`
	ReasoningAnalysis map[string]any `json:"reasoning_analysis,omitempty"`
	StructuredData    map[string]any `json:"structured_data,omitempty"`
}

// Map renders the context for script and webhook consumers.
func (c Context) Map() map[string]any {
	m := map[string]any{
		"user_id": c.UserID,
		"level":   c.Level,
	}
	if c.Intent != "" {
		m["intent"] = c.Intent
	}
	if c.ReasoningAnalysis != nil {
		m["reasoning_analysis"] = c.ReasoningAnalysis
	}
	if c.StructuredData != nil {
		m["structured_data"] = c.StructuredData
	}
	return m
}

// Skill is a pluggable handler for a class of queries.
type Skill interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, query string, sc Context) (any, error)
}

// Execution is the outcome of running a skill through the registry.
type Execution struct {
	Success bool   `json:"success"`
	Skill   string `json:"skill,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	// Err is the error returned by the skill itself, kept for errors.Is.
	Err error `json:"-"`
}

// Func adapts a plain function into a Skill.
type Func struct {
	Desc Descriptor
	Fn   func(ctx context.Context, query string, sc Context) (any, error)
}

// Descriptor implements Skill.
func (f *Func) Descriptor() Descriptor { return f.Desc }

// Execute implements Skill.
func (f *Func) Execute(ctx context.Context, query string, sc Context) (any, error) {
	return f.Fn(ctx, query, sc)
}
