package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanctuarypay/tithe-backend/internal/bootstrap"
)

func sweepCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expiry sweep controls",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Replay parked callbacks and expire stale intents once, without taking the cron lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), cmd.ErrOrStderr(), func(engine *bootstrap.Engine) error {
				result, err := engine.Sweep(cmd.Context(), c.now())
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d expired=%d conflicts=%d replayed=%d abandoned=%d\n",
					result.Scanned, result.Expired, result.Conflicts, result.Replayed, result.Abandoned)
				return err
			})
		},
	})
	return cmd
}
