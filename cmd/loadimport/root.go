package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ignite/loadboard/internal/app"
	"github.com/ignite/loadboard/internal/config"
	"github.com/spf13/cobra"
)

// openApp builds the pipeline for one command run. Tests replace it.
var openApp = func(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("load config: %w", err))
	}
	app.ConfigureLogging(cfg.Logging)
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return a, nil
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "loadimport",
		Short:         "Bulk load import tool: preview, import and undo CSV load files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults plus environment when empty)")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newUndoCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newTemplatesCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
