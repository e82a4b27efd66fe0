// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"testing"

	"github.com/hashicorp/cli"
	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
)

func TestMigrateCommand_Implements(t *testing.T) {
	ci.Parallel(t)
	var _ cli.Command = &MigrateCommand{}
}

func TestMigrateCommand_Fails(t *testing.T) {
	// Not parallel: mutates the process environment.
	t.Setenv("DATABASE_URL", "")

	ui := cli.NewMockUi()
	cmd := &MigrateCommand{Meta: Meta{Ui: ui}}

	// Positional arguments are rejected.
	code := cmd.Run([]string{"some", "bad", "args"})
	must.Eq(t, 1, code)
	must.StrContains(t, ui.ErrorWriter.String(), "takes no arguments")

	ui.OutputWriter.Reset()
	ui.ErrorWriter.Reset()

	// No database configured anywhere.
	code = cmd.Run([]string{})
	must.Eq(t, 1, code)
	must.StrContains(t, ui.ErrorWriter.String(), "DATABASE_URL")

	ui.OutputWriter.Reset()
	ui.ErrorWriter.Reset()

	// Nothing listens on port 1, so the connection check fails fast.
	code = cmd.Run([]string{"-database-url", "postgres://fieldward@127.0.0.1:1/fieldward"})
	must.Eq(t, 1, code)
	must.StrContains(t, ui.ErrorWriter.String(), "Error connecting to database")
}
