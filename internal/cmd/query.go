// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/traylinx/nyx/internal/router"
)

func newQueryCommand() *cobra.Command {
	var user string
	c := &cobra.Command{
		Use:   "query <text>",
		Short: "Route one query and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(stderr)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.router.Route(cmd.Context(), strings.Join(args, " "), user)
			fmt.Fprintln(cmd.OutOrStdout(), res.String())
			return nil
		},
	}
	c.Flags().StringVar(&user, "user", router.DefaultUserID, "user id passed to skills and providers")
	return c
}
