// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package search

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
	"github.com/traylinx/nyx/internal/util"
)

func priceTokens(prompt, completion int64, inRate, outRate float64) float64 {
	cost := float64(prompt)/1000*inRate + float64(completion)/1000*outRate
	return util.Round(cost, 6)
}

// tokenEstimator counts tokens with cl100k_base. If the codec cannot be
// loaded it falls back to words * 1.3.
type tokenEstimator struct {
	codec tokenizer.Codec
}

func newTokenEstimator() *tokenEstimator {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warnf("tokenizer unavailable, using word-count estimate: %v", err)
		return &tokenEstimator{}
	}
	return &tokenEstimator{codec: codec}
}

func (e *tokenEstimator) count(text string) int {
	if text == "" {
		return 0
	}
	if e.codec != nil {
		if ids, _, err := e.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return int(float64(len(strings.Fields(text))) * 1.3)
}
