package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{Use: "search", Short: "Manage the search index"}
	cmd.AddCommand(&cobra.Command{
		Use:   "reindex",
		Short: "Write every post to the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Search().Reindex(cmd.Context())
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d posts into %s\n", n, a.Search().IndexName())
			return nil
		},
	})
	return cmd
}
