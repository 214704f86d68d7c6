package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sanctuarypay/tithe-backend/internal/bootstrap"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

// cli holds what subcommands share. Tests swap loadConfig and now.
type cli struct {
	envFile    string
	verbose    bool
	loadConfig func() (*config.Config, error)
	now        func() time.Time
}

func newCLI() *cli {
	c := &cli{now: time.Now}
	c.loadConfig = func() (*config.Config, error) {
		if c.envFile != "" {
			if err := godotenv.Load(c.envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", c.envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}
		return config.Load()
	}
	return c
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "tithectl",
		Short:         "Operator tooling for payment intents, webhooks and credentials",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file to load before reading TITHE_* variables")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(intentCmd(c))
	root.AddCommand(sweepCmd(c))
	root.AddCommand(webhookCmd(c))
	root.AddCommand(apikeyCmd(c))
	root.AddCommand(tokenCmd(c))
	root.AddCommand(outboxCmd(c))
	return root
}

func (c *cli) logger(cfg *config.Config, out io.Writer) *logger.Logger {
	level := logger.ParseLevel(cfg.App.LogLevel)
	if c.verbose {
		level = logger.ParseLevel("debug")
	}
	return logger.New(logger.Options{
		ServiceName: "tithectl",
		Level:       level,
		Format:      "console",
		Output:      out,
	})
}

// withDB loads config and opens the database for the duration of fn.
func (c *cli) withDB(ctx context.Context, errOut io.Writer, fn func(*config.Config, *db.Client, *logger.Logger) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logg := c.logger(cfg, errOut)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()
	return fn(cfg, dbClient, logg)
}

// withEngine builds the engine on top of withDB. Metrics are not registered.
func (c *cli) withEngine(ctx context.Context, errOut io.Writer, fn func(*bootstrap.Engine) error) error {
	return c.withDB(ctx, errOut, func(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) error {
		engine, err := bootstrap.NewEngine(ctx, bootstrap.EngineParams{
			Config: cfg,
			DB:     dbClient.DB(),
			Logger: logg,
		})
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}
		return fn(engine)
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
