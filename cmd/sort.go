package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/foreignassets"
	"github.com/google/subcommands"
)

type sortCmd struct{}

func (*sortCmd) Name() string     { return "sort" }
func (*sortCmd) Synopsis() string { return "sort vest.json and sell.json by symbol and date" }
func (*sortCmd) Usage() string {
	return `fas sort

  Rewrites vest.json and sell.json sorted by symbol and date. Entries of 0
  shares are dropped.
`
}

func (*sortCmd) SetFlags(f *flag.FlagSet) {}

func (*sortCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	vests, sells, err := loadEvents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input files: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := sortFiles(vests, sells); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing input files: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Sorted %d vests and %d sales\n", len(vests), len(sells))
	return subcommands.ExitSuccess
}

type validateCmd struct{}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check that sales match the vests" }
func (*validateCmd) Usage() string {
	return `fas validate

  Replays vest.json and sell.json without market data and reports sales
  before the first vest or selling more shares than held.
`
}

func (*validateCmd) SetFlags(f *flag.FlagSet) {}

func (*validateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	vests, sells, err := loadEvents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input files: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := foreignassets.Validate(vests, sells); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input files:\n%v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "%d vests and %d sales are consistent\n", len(vests), len(sells))
	return subcommands.ExitSuccess
}
