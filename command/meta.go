// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"flag"

	"github.com/hashicorp/cli"
)

// Meta contains the meta-options and functionality that nearly every
// Fieldward command inherits.
type Meta struct {
	Ui cli.Ui
}

// FlagSet returns a FlagSet for the given command. Parse errors are routed
// through the UI's error writer instead of the process stderr.
func (m *Meta) FlagSet(n string) *flag.FlagSet {
	f := flag.NewFlagSet(n, flag.ContinueOnError)
	f.SetOutput(&uiErrorWriter{ui: m.Ui})
	return f
}
