// Command frontier runs Monte Carlo efficient-portfolio searches from the
// command line, either over a local price file or live provider data.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "", "path to frontier.toml (defaults to FRONTIER_CONFIG, then the binary directory)")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&simulateCmd{}, "simulation")
	commander.Register(&historyCmd{}, "data")
	commander.Register(&versionCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
