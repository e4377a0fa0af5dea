// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/traylinx/nyx/internal/reasoning"
	"github.com/traylinx/nyx/internal/search"
)

// Level is the tier that produced a result. LevelError marks a failure
// outside any tier and is encoded as the JSON string "error".
type Level int

const (
	LevelError Level = 0
	Level1     Level = 1
	Level2     Level = 2
	Level3     Level = 3
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return strconv.Itoa(int(l))
}

// MarshalJSON encodes tiers as numbers and LevelError as "error".
func (l Level) MarshalJSON() ([]byte, error) {
	if l == LevelError {
		return []byte(`"error"`), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

// UnmarshalJSON accepts 1, 2, 3 or "error".
func (l *Level) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`"error"`)) {
		*l = LevelError
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil || n < 1 || n > 3 {
		return fmt.Errorf("invalid level %s", data)
	}
	*l = Level(n)
	return nil
}

// Method names the path a query took.
type Method string

const (
	MethodLocalClassification Method = "local_classification"
	MethodReasoningDirect     Method = "reasoning_direct"
	MethodReasoningWithSkill  Method = "reasoning_with_skill"
	MethodWebSearch           Method = "web_search"
)

// Result is the envelope returned for every routed query. Result is only
// meaningful when Success is true and Error only when it is false.
type Result struct {
	Success        bool                `json:"success"`
	Level          Level               `json:"level"`
	Method         Method              `json:"method,omitempty"`
	Result         any                 `json:"result,omitempty"`
	Error          string              `json:"error,omitempty"`
	BudgetExceeded bool                `json:"budget_exceeded,omitempty"`
	Skill          string              `json:"skill,omitempty"`
	Analysis       *reasoning.Analysis `json:"analysis,omitempty"`
	Intent         string              `json:"intent,omitempty"`
	Confidence     float64             `json:"confidence,omitempty"`
	LatencyMS      int64               `json:"latency_ms"`
}

// DirectAnswer is the tier-2 payload when no skill is needed.
type DirectAnswer struct {
	Response string              `json:"response"`
	Type     string              `json:"type"`
	Analysis *reasoning.Analysis `json:"analysis"`
}

// SearchAnswer is the tier-3 payload.
type SearchAnswer struct {
	Response  string          `json:"response"`
	Sources   []search.Source `json:"sources"`
	Citations []string        `json:"citations"`
	Type      string          `json:"type"`
	Cost      float64         `json:"cost"`
}

func failure(level Level, msg string) *Result {
	return &Result{Success: false, Level: level, Error: msg}
}

// String renders a result for CLI output.
func (r *Result) String() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", *r)
	}
	return string(b)
}
