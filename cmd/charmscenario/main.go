// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// charmscenario prints the events a charm can observe and checks State
// snapshots against the charm for consistency.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uitable"
	"github.com/juju/ansiterm"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/version/v2"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/scenario"
	"github.com/canonical/operator-sub000/state"
)

var logger = loggo.GetLogger("charmscenario")

const (
	// exitInconsistent is returned when the state snapshot is not
	// consistent with the charm.
	exitInconsistent = 1
	// exitUsage is returned when the command was run in an invalid way.
	exitUsage = 2
)

const doc = `
charmscenario reads the charm in --charm-dir and prints every event the
charm can observe, with the oldest controller version able to deliver it.

With --state, the YAML State snapshot in the file is checked against the
charm and every inconsistency found is reported.
`

type command struct {
	charmDir      string
	stateFile     string
	loggingConfig string
	jujuVersion   string
	color         bool
}

var (
	consistentColor   = ansiterm.Foreground(ansiterm.Green)
	undeclaredColor   = ansiterm.Foreground(ansiterm.Yellow)
	inconsistentColor = ansiterm.Foreground(ansiterm.BrightRed)
)

func (c *command) setFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.charmDir, "charm-dir", ".", "directory holding metadata.yaml")
	f.StringVar(&c.stateFile, "state", "", "YAML State snapshot to check")
	f.StringVar(&c.loggingConfig, "logging-config", "", "loggo configuration, for example <root>=DEBUG")
	f.StringVar(&c.jujuVersion, "juju-version", scenario.DefaultJujuVersion.String(), "simulated controller version")
	f.BoolVar(&c.color, "color", false, "force use of ANSI color codes")
}

func (c *command) run(out io.Writer) (int, error) {
	stdout := ansiterm.NewWriter(out)
	if c.color {
		stdout.SetColorCapable(true)
	}
	if c.loggingConfig != "" {
		if err := loggo.ConfigureLoggers(c.loggingConfig); err != nil {
			return exitUsage, errors.Annotate(err, "configuring loggers")
		}
	}
	jujuVersion, err := version.Parse(c.jujuVersion)
	if err != nil {
		return exitUsage, errors.Trace(err)
	}
	dir, err := charm.ReadCharmDir(c.charmDir)
	if err != nil {
		return exitUsage, errors.Trace(err)
	}
	logger.Debugf("read charm %q from %q", dir.Meta.Name, c.charmDir)

	if err := printCatalog(stdout, dir, jujuVersion); err != nil {
		return exitUsage, errors.Trace(err)
	}
	if c.stateFile == "" {
		return 0, nil
	}

	st, err := state.ReadFile(c.stateFile)
	if err != nil {
		return exitUsage, errors.Trace(err)
	}
	problems := scenario.CheckState(scenario.CharmSpec{
		Meta:        dir.Meta,
		Config:      dir.Config,
		Actions:     dir.Actions,
		AppName:     dir.Meta.Name,
		JujuVersion: jujuVersion,
	}, st)
	fmt.Fprintln(stdout)
	if len(problems) == 0 {
		fmt.Fprintf(stdout, "%s: ", c.stateFile)
		consistentColor.Fprintf(stdout, "consistent")
		fmt.Fprintln(stdout)
		return 0, nil
	}
	fmt.Fprintf(stdout, "%s: %d problem(s)\n", c.stateFile, len(problems))
	for _, p := range problems {
		color := inconsistentColor
		if errors.Is(p, coreerrors.NotDeclared) {
			color = undeclaredColor
		}
		fmt.Fprint(stdout, "  ")
		color.Fprintf(stdout, "%v", p)
		fmt.Fprintln(stdout)
	}
	return exitInconsistent, nil
}

func printCatalog(w io.Writer, dir *charm.CharmDir, jujuVersion version.Number) error {
	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true
	table.AddRow("Event", "Kind", "Scope", "Since", "Supported")
	for _, id := range hooks.Catalog(dir.Meta, dir.Actions) {
		kind, scope := hooks.ParseEventID(id, dir.Meta, dir.Actions)
		since := "-"
		if minVersion := kind.MinimumJujuVersion(); minVersion != version.Zero {
			since = minVersion.String()
		}
		supported := "yes"
		if kind.CheckSupported(jujuVersion) != nil {
			supported = "no"
		}
		table.AddRow(id, string(kind), scope, since, supported)
	}
	_, err := fmt.Fprintln(w, table)
	return errors.Trace(err)
}

func main() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

// Main runs the command with args and returns the exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	c := &command{}
	f := gnuflag.NewFlagSet("charmscenario", gnuflag.ContinueOnError)
	f.SetOutput(stderr)
	f.Usage = func() {
		fmt.Fprintf(stderr, "usage: charmscenario [options]\n\noptions:\n")
		f.PrintDefaults()
		fmt.Fprint(stderr, doc)
	}
	c.setFlags(f)
	if err := f.Parse(true, args); err != nil {
		return exitUsage
	}
	if len(f.Args()) > 0 {
		fmt.Fprintf(stderr, "ERROR unrecognized args: %q\n", f.Args())
		return exitUsage
	}
	code, err := c.run(stdout)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR %v\n", err)
	}
	return code
}
