// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cmd implements the nyx command line: the HTTP server, the stdio
// bridge and the one-shot query, skills, budget and hooks commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/traylinx/nyx/internal/config"
	"github.com/traylinx/nyx/internal/logging"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

// NewRootCommand builds the nyx command tree. Each call returns a fresh
// tree so tests can run commands in isolation.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nyx",
		Short: "Three-tier query router",
		Long: `Nyx answers natural-language queries through three tiers:
a local intent classifier that runs skills directly, a reasoning model
that may delegate to a skill, and a budget-capped web search.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "configuration file (optional)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(),
		newBridgeCommand(),
		newQueryCommand(),
		newSkillsCommand(),
		newBudgetCommand(),
		newHooksCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig loads .env, then the YAML config with env overrides, and
// points logging at logOut unless file logging is enabled.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	logging.SetupBaseLogger()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("failed to load %s: %v", envFile, err)
		}
	}

	cfg, err := config.LoadConfigOptional(cfgFile, true)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir, logOut); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stderr is where one-shot commands log so stdout stays clean for piping.
var stderr io.Writer = os.Stderr
