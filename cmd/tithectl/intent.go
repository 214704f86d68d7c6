package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sanctuarypay/tithe-backend/api/controllers"
	"github.com/sanctuarypay/tithe-backend/internal/bootstrap"
	"github.com/sanctuarypay/tithe-backend/pkg/pagination"
)

func intentCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Inspect payment intents",
	}
	cmd.AddCommand(intentGetCmd(c))
	cmd.AddCommand(intentFlaggedCmd(c))
	return cmd
}

func intentGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get [intent-id]",
		Short: "Print one intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid intent id %q", args[0])
			}
			return c.withEngine(cmd.Context(), cmd.ErrOrStderr(), func(engine *bootstrap.Engine) error {
				intent, err := engine.Intent(cmd.Context(), id)
				if err != nil {
					return err
				}
				view := struct {
					controllers.IntentView
					PayerIdentifier  string `json:"payerIdentifier"`
					FlaggedForReview bool   `json:"flaggedForReview"`
				}{
					IntentView:       controllers.NewIntentView(*intent),
					PayerIdentifier:  intent.PayerIdentifier,
					FlaggedForReview: intent.FlaggedForReview,
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func intentFlaggedCmd(c *cli) *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List intents held for manual reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > pagination.MaxLimit {
				return fmt.Errorf("--limit must be between 1 and %d", pagination.MaxLimit)
			}
			if _, err := pagination.ParseCursor(cursor); err != nil {
				return fmt.Errorf("invalid --cursor: %w", err)
			}
			return c.withEngine(cmd.Context(), cmd.ErrOrStderr(), func(engine *bootstrap.Engine) error {
				page, err := engine.Flagged(cmd.Context(), pagination.Params{Limit: limit, Cursor: cursor})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, intent := range page.Items {
					reason := ""
					if intent.FailureReason != nil {
						reason = *intent.FailureReason
					}
					fmt.Fprintf(out, "%s\t%s\t%s\t%d %s\t%s\n",
						intent.ID, intent.Provider, intent.State, intent.AmountMinor, intent.Currency, reason)
				}
				if page.NextCursor != "" {
					fmt.Fprintf(out, "next cursor: %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}
