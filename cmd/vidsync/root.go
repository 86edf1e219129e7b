// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vidsync/internal/config"
	"github.com/ManuGH/vidsync/internal/daemon"
	xglog "github.com/ManuGH/vidsync/internal/log"
)

type cli struct {
	configPath string
	logLevel   string
	cfg        config.AppConfig

	// appOpts is extended by tests.
	appOpts []daemon.Option
}

func newRootCmd(opts ...daemon.Option) *cobra.Command {
	c := &cli{appOpts: opts}
	root := &cobra.Command{
		Use:           "vidsync",
		Short:         "Keep a local view of a video processing job in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return c.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		c.watchCmd(),
		c.serveCmd(),
		c.actionCmd("pause", "Pause a running job"),
		c.actionCmd("resume", "Resume a paused job"),
		c.actionCmd("delete", "Delete a job"),
		c.flagCmd(),
		c.historyCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.NewLoader(c.configPath, version).Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg

	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Output:  cmd.ErrOrStderr(),
		Service: daemon.ServiceName,
		Version: version,
	})
	if err := xglog.SetLevel(cfg.Log.Level); err != nil {
		return err
	}

	source := "env+defaults"
	if c.configPath != "" {
		source = "file"
	}
	xglog.WithComponent("cli").Debug().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", c.configPath).
		Msg("configuration loaded")
	return nil
}

func (c *cli) newApp(ctx context.Context) (*daemon.App, error) {
	return daemon.New(ctx, c.cfg, c.appOpts...)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "vidsync %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return err
		},
	}
}
