// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command nyx routes natural-language queries across a local classifier,
// a reasoning model and a budget-capped web search.
package main

import (
	"os"

	"github.com/traylinx/nyx/internal/buildinfo"
	"github.com/traylinx/nyx/internal/cmd"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
