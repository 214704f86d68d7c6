package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox"
)

func outboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay intent events",
	}
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Events the publisher parked",
	}
	dlq.AddCommand(dlqListCmd(c))
	dlq.AddCommand(dlqRequeueCmd(c))
	cmd.AddCommand(dlq)
	cmd.AddCommand(outboxPendingCmd(c))
	return cmd
}

func outboxPendingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Count events not yet published",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, dbClient *db.Client, _ *logger.Logger) error {
				n, err := outbox.NewRepository(dbClient.DB()).CountPending(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func dlqListCmd(c *cli) *cobra.Command {
	var (
		intent string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parked events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := outbox.DLQFilter{Limit: limit}
			if intent != "" {
				id, err := uuid.Parse(strings.TrimSpace(intent))
				if err != nil {
					return fmt.Errorf("invalid --intent %q", intent)
				}
				filter.AggregateID = &id
			}
			return c.withDB(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, dbClient *db.Client, _ *logger.Logger) error {
				rows, err := outbox.NewDLQRepository(dbClient.DB()).List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, row := range rows {
					msg := ""
					if row.ErrorMessage != nil {
						msg = *row.ErrorMessage
					}
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
						row.EventID, row.EventType, row.AggregateID, row.ErrorReason, msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&intent, "intent", "", "only events for this intent id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	return cmd
}

func dlqRequeueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [event-id]",
		Short: "Give a parked event a fresh publish budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			return c.withDB(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, dbClient *db.Client, _ *logger.Logger) error {
				err := outbox.NewDLQRepository(dbClient.DB()).Requeue(cmd.Context(), eventID)
				if errors.Is(err, outbox.ErrNotParked) {
					return fmt.Errorf("event %s is not parked", eventID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", eventID)
				return nil
			})
		},
	}
}
