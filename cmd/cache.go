package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the extraction cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cached extractions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.DeleteExpiredExtractions(ctx)
		if err != nil {
			return eris.Wrap(err, "prune extraction cache")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired extractions.\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
