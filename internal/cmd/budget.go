// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/traylinx/nyx/internal/budget"
)

func newBudgetCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "budget",
		Short: "Inspect or reset the search budget",
	}
	c.AddCommand(newBudgetStatusCommand(), newBudgetResetCommand(), newBudgetTransactionsCommand())
	return c
}

// withGovernor loads only what the budget commands need.
func withGovernor(fn func(g *budget.Governor, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(stderr)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(a.governor, cmd.OutOrStdout())
	}
}

func newBudgetStatusCommand() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "status",
		Short: "Show spend for the current month",
		RunE: withGovernor(func(g *budget.Governor, out io.Writer) error {
			st := g.Status()
			if asJSON {
				return printJSON(out, st)
			}
			fmt.Fprintf(out, "Period:    %s\n", st.PeriodStart.Format("2006-01"))
			fmt.Fprintf(out, "Spent:     $%.4f of $%.2f (%.2f%%)\n", st.Spent, st.Limit, st.PercentageUsed)
			fmt.Fprintf(out, "Remaining: $%.4f\n", st.Remaining)
			fmt.Fprintf(out, "Requests:  %d\n", st.RequestsCount)
			fmt.Fprintf(out, "Status:    %s\n", st.Status)
			return nil
		}),
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return c
}

func newBudgetResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Start a new budget period now",
		RunE: withGovernor(func(g *budget.Governor, out io.Writer) error {
			if err := g.Reset(); err != nil {
				return fmt.Errorf("reset budget: %w", err)
			}
			fmt.Fprintln(out, "Budget reset.")
			return nil
		}),
	}
}

func newBudgetTransactionsCommand() *cobra.Command {
	var n int
	var asJSON bool
	c := &cobra.Command{
		Use:   "transactions",
		Short: "List recent search charges",
		RunE: withGovernor(func(g *budget.Governor, out io.Writer) error {
			txs := g.RecentTransactions(n)
			if asJSON {
				return printJSON(out, txs)
			}
			if len(txs) == 0 {
				fmt.Fprintln(out, "No transactions this period.")
				return nil
			}
			for _, tx := range txs {
				query, _ := tx.Details["query"].(string)
				fmt.Fprintf(out, "%s  $%.6f  %s\n", tx.Timestamp.Format(time.RFC3339), tx.Cost, query)
			}
			return nil
		}),
	}
	c.Flags().IntVarP(&n, "limit", "n", 10, "number of transactions to show (0 for all)")
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return c
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
