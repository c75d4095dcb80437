package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cfoust/kbsync/pkg/config"
	"github.com/cfoust/kbsync/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Version bool `help:"Print version information and exit." short:"v"`
	Debug   bool `help:"Whether to enable debug logging."`

	Serve struct {
		Configs  []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"file"`
		Scenario string   `help:"Scenario describing the simulated players." type:"existingfile"`
	} `cmd:"" help:"Run the engine against simulated players with diagnostics."`

	Config struct {
	} `cmd:"" help:"Write the default configuration to standard output."`

	Simulate struct {
		Configs  []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"file"`
		Scenario string   `help:"Scenario to run instead of the built-in one." type:"existingfile"`
	} `cmd:"" help:"Run a scenario and print a YAML report of every hit."`

	Toggle struct {
		Entity  string   `arg:"" name:"entity" help:"Entity to toggle compensation for."`
		Configs []string `help:"Configuration files." type:"file" short:"c"`
	} `cmd:"" help:"Flip the stored compensation preference of an entity."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := kong.Parse(&CLI,
		kong.Name("kbsync"),
		kong.Description("latency compensated knockback"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if CLI.Version {
		fmt.Printf(
			"kbsync %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	var err error
	switch ctx.Command() {
	case "serve", "serve <configs>":
		err = serveCommand(CLI.Serve.Configs, CLI.Serve.Scenario)
	case "config":
		os.Stdout.Write(config.DEFAULT)
	case "simulate", "simulate <configs>":
		err = simulateCommand(CLI.Simulate.Configs, CLI.Simulate.Scenario)
	case "toggle <entity>":
		err = toggleCommand(CLI.Toggle.Entity, CLI.Toggle.Configs)
	}

	if err != nil {
		writeError(err)
	}
}
