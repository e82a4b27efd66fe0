// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"

	"github.com/fieldward/fieldward/command"
	"github.com/fieldward/fieldward/version"
)

func main() {
	os.Exit(Run(os.Args[1:]))
}

// Run runs the CLI with the given arguments and returns the exit code.
func Run(args []string) int {
	metaPtr := &command.Meta{
		Ui: &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
		},
	}

	// The agent prints its own startup banner and streams log lines, so it
	// gets a plain UI of its own.
	agentUi := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := &cli.CLI{
		Name:                       "fieldward",
		Version:                    version.GetVersion().FullVersionNumber(true),
		Args:                       args,
		Commands:                   command.Commands(metaPtr, agentUi),
		Autocomplete:               true,
		AutocompleteNoDefaultFlags: true,
		HelpWriter:                 os.Stdout,
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err.Error())
		return 1
	}

	return exitCode
}
