// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := New()

	tests := []struct {
		name       string
		query      string
		wantIntent string
		wantConf   float64
	}{
		{
			name:       "empty query",
			query:      "   ",
			wantIntent: "",
			wantConf:   0,
		},
		{
			name:       "single greeting stays below threshold",
			query:      "hola",
			wantIntent: "",
			wantConf:   0.35,
		},
		{
			name:       "repeated greeting and help",
			query:      "hola hola, necesito ayuda",
			wantIntent: General,
			wantConf:   (1.0 + 0.7) / 2,
		},
		{
			name:       "weather single hits on both patterns",
			query:      "mucho calor y la temperatura sube",
			wantIntent: Weather,
			wantConf:   0.7,
		},
		{
			name:       "accented calendar words",
			query:      "agendar una reunión y otra reunión para agendar mañana que estoy libre",
			wantIntent: Calendar,
			wantConf:   0.9,
		},
		{
			name:       "uppercase input",
			query:      "CLIMA y TEMPERATURA, mucho SOL",
			wantIntent: Weather,
			wantConf:   (1.0 + 0.7) / 2,
		},
		{
			name:       "news query scores below threshold",
			query:      "cuáles son las últimas noticias sobre IA",
			wantIntent: "",
			wantConf:   1.4 / 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)
			assert.Equal(t, tt.wantIntent, got.Intent)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestClassify_AccentedWordBoundaries(t *testing.T) {
	c := NewEmpty()
	require.NoError(t, c.AddPattern("unit", `\bmes\b`))

	// "mesón" is one word; an ASCII-only boundary would split it at "ó".
	assert.Equal(t, 0.0, c.Classify("el mesón").Confidence)
	assert.InDelta(t, 0.7, c.Classify("este mes").Confidence, 1e-9)
}

func TestClassify_TieGoesToFirstIntent(t *testing.T) {
	c := NewEmpty()
	require.NoError(t, c.AddPattern("alpha", `\bping\b`))
	require.NoError(t, c.AddPattern("beta", `\bping\b`))

	got := c.Classify("ping")
	assert.Equal(t, "alpha", got.Intent)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
}

func TestAddPattern(t *testing.T) {
	c := New()
	require.Equal(t, []string{Calendar, Search, Weather, General}, c.Intents())

	before := c.Classify("deploy deploy")
	assert.False(t, before.Matched())

	require.NoError(t, c.AddPattern("ops", `\bdeploy\b`))
	assert.Equal(t, []string{Calendar, Search, Weather, General, "ops"}, c.Intents())

	after := c.Classify("deploy deploy")
	assert.Equal(t, "ops", after.Intent)
	assert.InDelta(t, 1.0, after.Confidence, 1e-9)

	err := c.AddPattern("ops", `(unclosed`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")

	require.Error(t, c.AddPattern("  ", `x`))
}

func TestIntentsIsCopy(t *testing.T) {
	c := New()
	got := c.Intents()
	got[0] = "mutated"
	assert.Equal(t, Calendar, c.Intents()[0])
}

func TestClassifyProperties(t *testing.T) {
	c := New()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	vocab := []string{"hola", "clima", "reunión", "agendar", "noticias", "sobre", "qué", "mañana", "libre", "x", "sol", "help"}
	queries := gen.SliceOf(gen.IntRange(0, len(vocab)-1)).Map(func(idx []int) string {
		words := make([]string, len(idx))
		for i, n := range idx {
			words[i] = vocab[n]
		}
		return strings.Join(words, " ")
	})

	properties.Property("confidence stays within [0, 1]", prop.ForAll(
		func(q string) bool {
			r := c.Classify(q)
			return r.Confidence >= 0 && r.Confidence <= 1
		},
		queries,
	))

	properties.Property("an intent is reported only at or above the usable threshold", prop.ForAll(
		func(q string) bool {
			r := c.Classify(q)
			if r.Matched() {
				return r.Confidence >= UsableThreshold
			}
			return r.Confidence < UsableThreshold
		},
		queries,
	))

	properties.Property("classification is deterministic", prop.ForAll(
		func(q string) bool {
			return c.Classify(q) == c.Classify(q)
		},
		queries,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
