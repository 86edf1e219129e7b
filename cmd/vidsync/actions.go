// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vidsync/internal/engine"
)

func (c *cli) actionCmd(name, short string) *cobra.Command {
	kind, _ := engine.ParseActionKind(name)
	return &cobra.Command{
		Use:   name + " JOB_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAction(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, e *engine.Engine) error {
				return e.Do(ctx, kind)
			})
		},
	}
}

func (c *cli) flagCmd() *cobra.Command {
	var (
		off  bool
		note string
	)
	cmd := &cobra.Command{
		Use:   "flag JOB_ID",
		Short: "Flag a job for review, or clear the flag with --off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAction(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, e *engine.Engine) error {
				return e.SetFlag(ctx, !off, note)
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the flag")
	cmd.Flags().StringVar(&note, "note", "", "note stored with the flag (max 500 characters)")
	return cmd
}

// runAction loads the job, runs one action and prints the resulting message.
func (c *cli) runAction(ctx context.Context, out io.Writer, jobID string, act func(context.Context, *engine.Engine) error) error {
	app, err := c.newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

	e, err := app.OpenSession(ctx, jobID)
	if err != nil {
		return err
	}
	defer e.Close()

	actErr := act(ctx, e)
	st := e.State()
	if st.Message != nil {
		if _, err := fmt.Fprintln(out, st.Message.Text); err != nil {
			return err
		}
	}
	return actErr
}
