// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/posener/complete"

	"github.com/fieldward/fieldward/version"
)

// gracefulTimeout controls how long we wait before forcefully terminating
const gracefulTimeout = 5 * time.Second

// Command is a Command implementation that runs a Fieldward agent.
// The command will not end unless a shutdown message is sent on the
// ShutdownCh. If two messages are sent on the ShutdownCh it will forcibly
// exit.
type Command struct {
	Version    *version.VersionInfo
	Ui         cli.Ui
	ShutdownCh <-chan struct{}

	args       []string
	agent      *Agent
	httpServer *HTTPServer
}

// readConfig layers the configuration sources: defaults (or the dev
// preset), then the environment, then flags. It returns nil after printing
// the problem when the result is unusable.
func (c *Command) readConfig() *Config {
	var dev bool
	cmdConfig := &Config{}

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Error(c.Help()) }

	flags.BoolVar(&dev, "dev", false, "")
	flags.StringVar(&cmdConfig.BindAddr, "bind", "", "")
	flags.IntVar(&cmdConfig.Port, "port", 0, "")
	flags.StringVar(&cmdConfig.LogLevel, "log-level", "", "")
	flags.BoolVar(&cmdConfig.LogJson, "log-json", false, "")
	flags.BoolVar(&cmdConfig.EnableDebug, "debug", false, "")

	if err := flags.Parse(c.args); err != nil {
		return nil
	}
	if args := flags.Args(); len(args) > 0 {
		c.Ui.Error(fmt.Sprintf("This command takes no arguments: %v", args))
		return nil
	}

	config := DefaultConfig()
	if dev {
		config = DevConfig()
	}
	config.Version = c.Version.VersionNumber()

	if err := config.LoadEnv(); err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading environment: %s", err))
		return nil
	}

	// Flags win over the environment.
	if cmdConfig.BindAddr != "" {
		config.BindAddr = cmdConfig.BindAddr
	}
	if cmdConfig.Port != 0 {
		config.Port = cmdConfig.Port
	}
	if cmdConfig.LogLevel != "" {
		config.LogLevel = cmdConfig.LogLevel
	}
	if cmdConfig.LogJson {
		config.LogJson = true
	}
	if cmdConfig.EnableDebug {
		config.EnableDebug = true
	}

	if err := config.Validate(); err != nil {
		c.Ui.Error(err.Error())
		return nil
	}
	return config
}

// setupLogger builds the root logger. Log lines flow through the UI so
// they stream under the startup banner; JSON output goes straight to
// stdout so shippers get one object per line.
func (c *Command) setupLogger(config *Config) (hclog.Logger, error) {
	level := hclog.LevelFromString(config.LogLevel)
	if level == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level: %s", config.LogLevel)
	}

	opts := &hclog.LoggerOptions{
		Name:       "fieldward",
		Level:      level,
		JSONFormat: config.LogJson,
		Output:     &cli.UiWriter{Ui: c.Ui},
	}
	if config.LogJson {
		opts.Output = os.Stdout
	}
	return hclog.New(opts), nil
}

// setupAgent starts the agent and the HTTP server over it.
func (c *Command) setupAgent(config *Config, logger hclog.Logger) error {
	c.Ui.Output("Starting Fieldward agent...")
	agent, err := NewAgent(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting agent: %s", err))
		return err
	}
	c.agent = agent

	httpServer, err := NewHTTPServer(agent, config)
	if err != nil {
		agent.Shutdown()
		c.Ui.Error(fmt.Sprintf("Error starting http server: %s", err))
		return err
	}
	c.httpServer = httpServer
	return nil
}

func (c *Command) Run(args []string) int {
	c.Ui = &cli.PrefixedUi{
		OutputPrefix: "==> ",
		InfoPrefix:   "    ",
		ErrorPrefix:  "==> ",
		Ui:           c.Ui,
	}

	c.args = args
	config := c.readConfig()
	if config == nil {
		return 1
	}

	logger, err := c.setupLogger(config)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	if err := c.setupAgent(config, logger); err != nil {
		return 1
	}
	defer c.agent.Shutdown()
	defer c.httpServer.Shutdown()

	store := "postgres"
	if config.DevMode {
		store = "memory"
	}

	// Compile agent information for output later
	info := map[string]string{
		"Version":   c.Version.FullVersionNumber(false),
		"Bind Addr": c.httpServer.Addr,
		"Log Level": config.LogLevel,
		"Store":     store,
		"Dev Mode":  strconv.FormatBool(config.DevMode),
	}

	infoKeys := make([]string, 0, len(info))
	for key := range info {
		infoKeys = append(infoKeys, key)
	}
	sort.Strings(infoKeys)

	// Agent configuration output
	padding := 18
	c.Ui.Output("Fieldward agent configuration:\n")
	for _, k := range infoKeys {
		c.Ui.Info(fmt.Sprintf(
			"%s%s: %s",
			strings.Repeat(" ", padding-len(k)),
			k,
			info[k]))
	}
	c.Ui.Output("")

	// Output the header that the agent has started
	c.Ui.Output("Fieldward agent started! Log data will stream in below:\n")

	// Wait for exit
	return c.handleSignals()
}

// handleSignals blocks until we get an exit-causing signal
func (c *Command) handleSignals() int {
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGPIPE)

	// Wait for a signal
WAIT:
	var sig os.Signal
	select {
	case s := <-signalCh:
		sig = s
	case <-c.ShutdownCh:
		sig = os.Interrupt
	}

	// Skip SIGPIPE; it arrives whenever a log consumer goes away and must
	// not stop the agent.
	if sig == syscall.SIGPIPE {
		goto WAIT
	}

	c.Ui.Output(fmt.Sprintf("Caught signal: %v", sig))

	// Attempt a graceful shutdown. The listener closes first so no new
	// requests land on a draining agent. A second signal exits immediately.
	gracefulCh := make(chan struct{})
	go func() {
		c.httpServer.Shutdown()
		if err := c.agent.Shutdown(); err != nil {
			c.Ui.Error(fmt.Sprintf("Error shutting down agent: %s", err))
			return
		}
		close(gracefulCh)
	}()

	c.Ui.Output("Gracefully shutting down agent...")
	select {
	case <-signalCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func (c *Command) Synopsis() string {
	return "Runs a Fieldward agent"
}

func (c *Command) Name() string { return "agent" }

func (c *Command) AutocompleteFlags() complete.Flags {
	return complete.Flags{
		"-dev":       complete.PredictNothing,
		"-bind":      complete.PredictAnything,
		"-port":      complete.PredictAnything,
		"-log-level": complete.PredictSet("TRACE", "DEBUG", "INFO", "WARN", "ERROR"),
		"-log-json":  complete.PredictNothing,
		"-debug":     complete.PredictNothing,
	}
}

func (c *Command) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *Command) Help() string {
	helpText := `
Usage: fieldward agent [options]

  Starts the Fieldward agent and runs until an interrupt is received.
  The agent serves the dispatch HTTP API and runs the background
  workers.

  Configuration comes from the environment (a .env file in the working
  directory is honored); the options below override it.

General Options:

  -dev
    Start the agent in development mode. This runs an in-memory state
    store with a generated JWT signing secret and fast worker ticks.
    Nothing survives a restart, and the listener binds to 127.0.0.1.

  -bind=<addr>
    The address to bind the HTTP listener to. Overrides the HOST
    environment variable. Defaults to 0.0.0.0.

  -port=<port>
    The port for the HTTP listener. Overrides the PORT environment
    variable. Defaults to 4680.

  -log-level=<level>
    The verbosity of agent logging. One of TRACE, DEBUG, INFO, WARN or
    ERROR. Defaults to INFO.

  -log-json
    Output logs in JSON format.

  -debug
    Register the pprof debug endpoints under /debug/pprof.
`
	return strings.TrimSpace(helpText)
}
