package main

import (
	"fmt"

	"github.com/pysugar/microblog/internal/db"
	"github.com/pysugar/microblog/internal/logging"
	"github.com/spf13/cobra"
)

func newDBCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Manage the database"}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.Testing)
			if err != nil {
				return err
			}
			defer logger.Sync()

			gdb, err := db.Open(cfg.DatabaseURL, cfg.Testing, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := gdb.DB(); err == nil {
				defer sqlDB.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s migrated\n", cfg.DatabaseURL)
			return nil
		},
	})
	return cmd
}
