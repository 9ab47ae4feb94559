// Command fas computes the foreign assets schedule of the Indian income tax return.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/foreignassets/cmd"
	"github.com/google/subcommands"

	_ "time/tzdata" // exchange time zones of quote dates
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	for _, c := range cmd.Commands {
		commander.Register(c, "")
	}

	cmd.Completion().Complete("fas")

	flag.Parse()
	cmd.Setup()
	os.Exit(int(commander.Execute(context.Background())))
}
