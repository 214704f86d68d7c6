package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/security"
)

const defaultKeyBytes = 32

func apikeyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Operator API key management",
	}
	cmd.AddCommand(apikeyGenerateCmd(c))
	cmd.AddCommand(apikeyHashCmd(c))
	return cmd
}

func apikeyGenerateCmd(c *cli) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a random operator key and its TITHE_OPERATOR_KEY_HASH value",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := security.GenerateAPIKey(size)
			if err != nil {
				return err
			}
			hash, err := security.HashAPIKey(key, c.operatorConfig())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:  %s\n", key)
			fmt.Fprintf(out, "hash: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "bytes", defaultKeyBytes, "random bytes in the key (min 16)")
	return cmd
}

func apikeyHashCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "hash [key]",
		Short: "Hash an existing operator key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return fmt.Errorf("key must not be empty")
			}
			hash, err := security.HashAPIKey(key, c.operatorConfig())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// operatorConfig falls back to the default argon2 cost when the environment
// cannot be loaded; hashing never needs the database.
func (c *cli) operatorConfig() config.OperatorConfig {
	if cfg, err := c.loadConfig(); err == nil {
		return cfg.Operator
	}
	return config.OperatorConfig{
		ArgonMemoryKB:    64 * 1024,
		ArgonTime:        3,
		ArgonParallelism: 2,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}
