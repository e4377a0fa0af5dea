// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intent provides the local (tier 1) intent classifier.
// Classification is keyword/regex scoring over a fixed, ordered taxonomy;
// it never calls out of process and never fails on malformed input.
package intent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	log "github.com/sirupsen/logrus"
)

// Built-in intents, in enumeration order. Order matters: ties go to the
// intent defined first.
const (
	Calendar = "calendar"
	Search   = "search"
	Weather  = "weather"
	General  = "general"
)

const (
	// UsableThreshold is the minimum confidence for Classify to report an intent.
	UsableThreshold = 0.5

	repeatedMatchWeight = 1.0
	singleMatchWeight   = 0.7

	matchTimeout = 50 * time.Millisecond
)

// Result is the outcome of a classification. Intent is empty when no intent
// reached UsableThreshold; Confidence still carries the best score seen.
type Result struct {
	Intent     string  `json:"intent,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Matched reports whether an intent was assigned.
func (r Result) Matched() bool {
	return r.Intent != ""
}

type pattern struct {
	source string
	re     *regexp2.Regexp
}

// Classifier scores queries against an ordered set of intent patterns.
// It is safe for concurrent use; AddPattern affects subsequent calls only.
type Classifier struct {
	mu       sync.RWMutex
	order    []string
	patterns map[string][]pattern
}

// defaultPatterns is the Spanish/English taxonomy the router ships with.
var defaultPatterns = []struct {
	intent   string
	patterns []string
}{
	{Calendar, []string{
		`\b(calendario|evento|reunión|cita|agenda|meeting)\b`,
		`\b(programar|agendar|crear evento)\b`,
		`\b(mañana|hoy|semana|mes)\b.*\b(libre|ocupado)\b`,
	}},
	{Search, []string{
		`\b(buscar|qué es|quién es|cuál es)\b`,
		`\b(noticias|información|datos)\b.*\bsobre\b`,
		`^(qué|quién|cuál|cuándo|dónde|cómo|por qué)`,
	}},
	{Weather, []string{
		`\b(clima|tiempo|temperatura)\b`,
		`\b(lluvia|sol|nublado|frío|calor)\b`,
	}},
	{General, []string{
		`\b(hola|hi|hello|buenos días|buenas tardes)\b`,
		`\b(ayuda|help|commands|comandos)\b`,
	}},
}

// New creates a classifier seeded with the default taxonomy.
func New() *Classifier {
	c := NewEmpty()
	for _, group := range defaultPatterns {
		for _, p := range group.patterns {
			if err := c.AddPattern(group.intent, p); err != nil {
				panic(fmt.Sprintf("intent: invalid built-in pattern %q: %v", p, err))
			}
		}
	}
	return c
}

// NewEmpty creates a classifier with no intents.
func NewEmpty() *Classifier {
	return &Classifier{patterns: make(map[string][]pattern)}
}

// AddPattern appends a case-insensitive pattern to intent, creating the
// intent at the end of the enumeration order when it is new.
func (c *Classifier) AddPattern(intent, expr string) error {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return fmt.Errorf("intent name is empty")
	}

	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		return fmt.Errorf("invalid pattern for %s: %w", intent, err)
	}
	re.MatchTimeout = matchTimeout

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.patterns[intent]; !ok {
		c.order = append(c.order, intent)
	}
	c.patterns[intent] = append(c.patterns[intent], pattern{source: expr, re: re})

	log.Debugf("intent pattern added for %s: %s", intent, expr)
	return nil
}

// Intents returns the supported intents in enumeration order.
func (c *Classifier) Intents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Classify returns the most likely intent for query.
//
// Per intent, confidence is the sum of pattern scores divided by the number
// of patterns, capped at 1.0. A pattern scores 1.0 when it matches more than
// once and 0.7 when it matches exactly once. The first intent in enumeration
// order wins ties.
func (c *Classifier) Classify(query string) Result {
	clean := strings.ToLower(strings.TrimSpace(query))
	if clean == "" {
		return Result{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	best := Result{}
	for _, name := range c.order {
		score := confidence(clean, c.patterns[name])
		if score > best.Confidence {
			best = Result{Intent: name, Confidence: score}
		}
	}

	if best.Confidence >= UsableThreshold {
		log.Debugf("intent classified: %s (confidence: %.2f)", best.Intent, best.Confidence)
		return best
	}

	log.Debugf("intent not classified with confidence: %.2f for %q", best.Confidence, truncate(query, 50))
	return Result{Confidence: best.Confidence}
}

func confidence(query string, patterns []pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}

	total := 0.0
	for _, p := range patterns {
		switch countMatches(p.re, query) {
		case 0:
		case 1:
			total += singleMatchWeight
		default:
			total += repeatedMatchWeight
		}
	}

	score := total / float64(len(patterns))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// countMatches counts non-overlapping matches, stopping at two.
// A match timeout counts as no match.
func countMatches(re *regexp2.Regexp, s string) int {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return 0
	}
	next, err := re.FindNextMatch(m)
	if err != nil || next == nil {
		return 1
	}
	return 2
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
