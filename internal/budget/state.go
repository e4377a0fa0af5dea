// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Transaction is one recorded search spend.
type Transaction struct {
	Timestamp time.Time      `json:"timestamp"`
	Cost      float64        `json:"cost"`
	Details   map[string]any `json:"details"`
}

// State is the persisted counter record for the current billing period.
type State struct {
	Limit         float64       `json:"limit"`
	Spent         float64       `json:"spent"`
	RequestsCount int           `json:"requests_count"`
	PeriodStart   time.Time     `json:"period_start"`
	Transactions  []Transaction `json:"transactions"`
}

func freshState(limit float64, now time.Time) State {
	return State{
		Limit:        limit,
		PeriodStart:  now,
		Transactions: []Transaction{},
	}
}

// samePeriod reports whether a and b fall in the same calendar month.
func samePeriod(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// loadState reads the record at path. A missing file yields (nil, nil).
func loadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read budget file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse budget file: %w", err)
	}
	if st.Spent < 0 || st.RequestsCount < 0 {
		return nil, fmt.Errorf("budget file holds negative counters")
	}
	if st.Transactions == nil {
		st.Transactions = []Transaction{}
	}
	return &st, nil
}
