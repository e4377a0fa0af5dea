// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSkillsCommand() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "skills",
		Short: "List the registered skills",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(stderr)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			list := a.skills.List()
			if asJSON {
				data, err := json.MarshalIndent(map[string]any{"skills": list, "count": len(list)}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(list) == 0 {
				fmt.Fprintln(out, "No skills registered.")
				fmt.Fprintf(out, "Create skill directories in: %s\n", a.skillsDir)
				return nil
			}
			fmt.Fprintf(out, "Skills (%d) from %s\n\n", len(list), a.skillsDir)
			for _, d := range list {
				fmt.Fprintf(out, "%s [%s]\n", d.Name, d.Kind)
				if d.Description != "" {
					fmt.Fprintf(out, "    %s\n", d.Description)
				}
				if len(d.Triggers) > 0 {
					fmt.Fprintf(out, "    triggers: %s\n", strings.Join(d.Triggers, ", "))
				}
			}
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return c
}
