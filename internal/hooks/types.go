// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hooks implements the event bus and the YAML-defined automation
// hooks that react to routing and budget events.
package hooks

import (
	"time"
)

// HookEvent defines the type of event that can trigger a hook.
type HookEvent string

const (
	EventRouteReceived   HookEvent = "route_received"
	EventRoutingDecision HookEvent = "routing_decision"
	EventRouteFailed     HookEvent = "route_failed"
	EventBudgetWarning   HookEvent = "budget_warning"
	EventBudgetCritical  HookEvent = "budget_critical"
	EventBudgetExceeded  HookEvent = "budget_exceeded"
	EventSkillFailed     HookEvent = "skill_failed"
)

// AllEvents lists every event the router and budget governor publish.
func AllEvents() []HookEvent {
	return []HookEvent{
		EventRouteReceived, EventRoutingDecision, EventRouteFailed,
		EventBudgetWarning, EventBudgetCritical, EventBudgetExceeded,
		EventSkillFailed,
	}
}

// HookAction defines the action to be performed when a hook is triggered.
type HookAction string

const (
	ActionLogWarning    HookAction = "log_warning"
	ActionLogInfo       HookAction = "log_info"
	ActionNotifyWebhook HookAction = "notify_webhook"
)

// Hook represents a single automation rule.
type Hook struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Event       HookEvent      `yaml:"event" json:"event"`
	Condition   string         `yaml:"condition" json:"condition"`
	Action      HookAction     `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params" json:"params"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`

	// FilePath is the source file (not in YAML)
	FilePath string `yaml:"-" json:"-"`
}

// EventContext carries one published event.
type EventContext struct {
	Event        HookEvent      `json:"event"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
	UserID       string         `json:"user_id,omitempty"`
	Skill        string         `json:"skill,omitempty"`
	Error        error          `json:"-"`
	ErrorMessage string         `json:"error,omitempty"`
}

// NewEvent builds an EventContext stamped with the current time.
func NewEvent(event HookEvent, data map[string]any) *EventContext {
	if data == nil {
		data = make(map[string]any)
	}
	return &EventContext{
		Event:     event,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// WithError attaches err to the event and returns it.
func (c *EventContext) WithError(err error) *EventContext {
	c.Error = err
	if err != nil {
		c.ErrorMessage = err.Error()
	}
	return c
}

// Publisher is the part of the event bus producers depend on.
type Publisher interface {
	Publish(ctx *EventContext)
	PublishAsync(ctx *EventContext)
}

// ActionHandler is a function that executes a hook action.
type ActionHandler func(hook *Hook, ctx *EventContext) error
