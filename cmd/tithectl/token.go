package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanctuarypay/tithe-backend/pkg/auth"
)

func tokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Member bearer tokens for local testing",
	}
	cmd.AddCommand(tokenMintCmd(c))
	return cmd
}

func tokenMintCmd(c *cli) *cobra.Command {
	var payload auth.MemberTokenPayload
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a member token with TITHE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			token, err := auth.MintMemberToken(cfg.JWT, c.now(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload.Subject, "subject", "", "identity provider subject")
	cmd.Flags().StringVar(&payload.Email, "email", "", "member email")
	cmd.Flags().StringVar(&payload.Name, "name", "", "member display name")
	cmd.Flags().StringVar(&payload.Phone, "phone", "", "member phone number")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
