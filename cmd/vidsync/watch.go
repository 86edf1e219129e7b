// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vidsync/internal/engine"
	"github.com/ManuGH/vidsync/internal/export"
	xglog "github.com/ManuGH/vidsync/internal/log"
)

func (c *cli) watchCmd() *cobra.Command {
	var (
		exportPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Follow a job until it reaches a final status",
		Long: "Loads the job, prints every change while polling, and exits once the job\n" +
			"completes, fails or is cancelled. With --export the final transcript and\n" +
			"summary are written atomically (.json for JSON, anything else for text).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

			if err := app.WatchCredentials(ctx); err != nil {
				xglog.WithComponent("cli").Warn().Err(err).Msg("token file watcher not started")
			}

			e, err := app.OpenSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer e.Close()

			return watch(ctx, cmd.OutOrStdout(), e, asJSON, exportPath)
		},
	}
	cmd.Flags().StringVarP(&exportPath, "export", "o", "", "write the final transcript to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print states as JSON lines")
	return cmd
}

// watch prints distinct states until the job settles in a final status, is
// deleted, or ctx ends.
func watch(ctx context.Context, out io.Writer, e *engine.Engine, asJSON bool, exportPath string) error {
	updates, cancel := e.Subscribe()
	defer cancel()

	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, open := <-updates:
			if !open {
				return nil
			}
			line, err := formatState(st, asJSON)
			if err != nil {
				return err
			}
			if line != last {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
				last = line
			}
			if st.JobDeleted {
				return nil
			}
			if st.Ready() && st.Snapshot.IsTerminal() && st.InFlightAction == engine.ActionNone {
				if exportPath == "" {
					return nil
				}
				if err := export.WriteSnapshot(ctx, exportPath, st.Snapshot); err != nil {
					return err
				}
				_, err := fmt.Fprintf(out, "exported to %s\n", exportPath)
				return err
			}
		}
	}
}

func formatState(st engine.SyncState, asJSON bool) (string, error) {
	if !asJSON {
		return renderState(st), nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(data), nil
}
