// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/posener/complete"

	"github.com/fieldward/fieldward/state/pgstore"
)

// migrateTimeout bounds the whole run, connection included. Individual
// migrations are fast; anything slower than this is a stuck lock.
const migrateTimeout = 5 * time.Minute

// MigrateCommand applies pending database schema migrations and exits.
type MigrateCommand struct {
	Meta
}

func (c *MigrateCommand) Help() string {
	helpText := `
Usage: fieldward migrate [options]

  Applies any pending schema migrations to the configured Postgres
  database and exits. The agent runs the same migrations at startup,
  so this command exists for deploy pipelines that migrate ahead of
  the rollout.

  The database is taken from the DATABASE_URL environment variable
  (a .env file in the working directory is honored) unless
  -database-url is set.

Migrate Options:

  -database-url=<url>
    Postgres connection string. Overrides the DATABASE_URL environment
    variable.

  -status
    Report the current schema version without applying anything.
`
	return strings.TrimSpace(helpText)
}

func (c *MigrateCommand) Synopsis() string {
	return "Apply pending database schema migrations"
}

func (c *MigrateCommand) Name() string { return "migrate" }

func (c *MigrateCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{
		"-database-url": complete.PredictAnything,
		"-status":       complete.PredictNothing,
	}
}

func (c *MigrateCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *MigrateCommand) Run(args []string) int {
	var dbURL string
	var status bool

	flags := c.Meta.FlagSet(c.Name())
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&dbURL, "database-url", "", "")
	flags.BoolVar(&status, "status", false, "")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	if args = flags.Args(); len(args) > 0 {
		c.Ui.Error("This command takes no arguments")
		c.Ui.Error(commandErrorText(c))
		return 1
	}

	if dbURL == "" {
		// godotenv does not overwrite variables that are already set.
		_ = godotenv.Load()
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		c.Ui.Error("DATABASE_URL must be set or -database-url provided")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "migrate",
		Level:  hclog.Info,
		Output: &cli.UiWriter{Ui: c.Ui},
	})

	store, err := pgstore.Open(ctx, dbURL, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error connecting to database: %s", err))
		return 1
	}
	defer store.Close()

	if status {
		version, err := store.MigrationStatus(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error reading schema version: %s", err))
			return 1
		}
		c.Ui.Output(fmt.Sprintf("Schema version: %d", version))
		return 0
	}

	if err := store.Migrate(ctx); err != nil {
		c.Ui.Error(fmt.Sprintf("Error applying migrations: %s", err))
		return 1
	}

	version, err := store.MigrationStatus(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error reading schema version: %s", err))
		return 1
	}
	c.Ui.Output(fmt.Sprintf("Migrations applied. Schema version: %d", version))
	return 0
}
