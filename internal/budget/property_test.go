// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package budget

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/traylinx/nyx/internal/util"
)

func TestBudgetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	costs := gen.SliceOf(gen.Float64Range(-0.5, 0.5))

	properties.Property("spent is the rounded running sum of positive costs", prop.ForAll(
		func(cs []float64) bool {
			g, err := New(Config{Limit: 1000})
			if err != nil {
				return false
			}
			want := 0.0
			count := 0
			for _, c := range cs {
				if err := g.RecordUsage(c, nil); err != nil {
					return false
				}
				if c > 0 {
					want = util.Round(want+c, 6)
					count++
				}
			}
			st := g.Status()
			return st.Spent == want && st.RequestsCount == count
		},
		costs,
	))

	properties.Property("spent never decreases within a period", prop.ForAll(
		func(cs []float64) bool {
			g, err := New(Config{Limit: 1000})
			if err != nil {
				return false
			}
			prev := 0.0
			for _, c := range cs {
				_ = g.RecordUsage(c, nil)
				cur := g.Status().Spent
				if cur < prev {
					return false
				}
				prev = cur
			}
			return true
		},
		costs,
	))

	properties.Property("transactions never exceed the cap", prop.ForAll(
		func(n int) bool {
			g, err := New(Config{Limit: 1000, MaxTransactions: 10})
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				_ = g.RecordUsage(0.01, nil)
			}
			want := n
			if want > 10 {
				want = 10
			}
			return len(g.RecentTransactions(0)) == want
		},
		gen.IntRange(0, 40),
	))

	properties.Property("CanSpend is idempotent and matches the safety limit", prop.ForAll(
		func(spent, estimate float64) bool {
			g, err := New(Config{Limit: 5})
			if err != nil {
				return false
			}
			_ = g.RecordUsage(spent, nil)
			first := g.CanSpend(estimate)
			second := g.CanSpend(estimate)
			want := g.Status().Spent+estimate <= 5*DefaultSafetyMargin
			return first == second && first == want
		},
		gen.Float64Range(0.001, 6),
		gen.Float64Range(0.001, 2),
	))

	properties.Property("an accepted reservation always fits under the safety limit", prop.ForAll(
		func(estimates []float64) bool {
			g, err := New(Config{Limit: 5})
			if err != nil {
				return false
			}
			for _, e := range estimates {
				if _, err := g.Reserve(e); err != nil {
					continue
				}
				st := g.Status()
				if st.Spent+st.Reserved > 5*DefaultSafetyMargin+1e-9 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0.001, 1.5)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
