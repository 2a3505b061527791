package main

import (
	"fmt"
	"os"

	"github.com/pysugar/microblog/internal/app"
	"github.com/pysugar/microblog/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "microblog",
		Short:         "A small social blogging service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to microblog.yaml (default: $MICROBLOG_CONFIG or the usual locations)")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newDBCmd(load))
	root.AddCommand(newSearchCmd(load))
	root.AddCommand(newUserCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

type configLoader func() (*config.Config, error)

// openApp builds an App for one-shot commands, without background jobs.
func openApp(load configLoader) (*app.App, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	cfg.SessionSweepSchedule = ""
	return app.New(cfg)
}
