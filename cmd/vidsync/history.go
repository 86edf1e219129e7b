// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vidsync/internal/store"
)

func (c *cli) historyCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "history JOB_ID",
		Short: "List recorded snapshots of a job, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()
			out := cmd.OutOrStdout()

			if verify {
				sq, ok := app.Store().(*store.SqliteStore)
				if !ok {
					return errors.New("--verify needs the sqlite store backend")
				}
				problems, err := sq.Verify(ctx, true)
				if err != nil {
					return fmt.Errorf("verify history database: %w", err)
				}
				if len(problems) > 0 {
					for _, p := range problems {
						fmt.Fprintln(out, p)
					}
					return fmt.Errorf("history database failed integrity check (%d problems)", len(problems))
				}
				fmt.Fprintln(out, "integrity ok")
			}

			recs, err := app.Store().History(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				_, err := fmt.Fprintf(out, "no history for %s\n", args[0])
				return err
			}
			for _, r := range recs {
				if _, err := fmt.Fprintln(out, renderRecord(r)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVar(&verify, "verify", false, "run a full integrity check first (sqlite only)")
	return cmd
}
