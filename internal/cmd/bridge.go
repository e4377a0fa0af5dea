// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/traylinx/nyx/internal/bridge"
)

func newBridgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Serve newline-delimited JSON requests on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Stdout carries responses only.
			cfg, err := loadConfig(stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			a.startWatchers()

			b, err := bridge.New(a.router, a.skills, a.governor)
			if err != nil {
				return err
			}
			return b.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
