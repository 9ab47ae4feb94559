package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"
)

type fetchCmd struct{}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "fetch the market data of a year into the cache" }
func (*fetchCmd) Usage() string {
	return `fas fetch <year>

  Downloads the closes, day ranges, company profiles and exchange rates needed
  to value vest.json and sell.json over the year, and merges them into
  public_data.json.
`
}

func (*fetchCmd) SetFlags(f *flag.FlagSet) {}

func (*fetchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: the year argument is required, e.g. fas fetch 2024")
		return subcommands.ExitUsageError
	}
	year, err := strconv.Atoi(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid year %q\n", f.Arg(0))
		return subcommands.ExitUsageError
	}
	if *noInternet {
		fmt.Fprintln(os.Stderr, "Error: fetch cannot work with -no-internet")
		return subcommands.ExitUsageError
	}

	vests, sells, err := loadEvents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input files: %v\n", err)
		return subcommands.ExitFailure
	}
	store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading market data cache: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := update(ctx, store, year, vests, sells); err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching market data: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Market data of %d saved to %s\n", year, dataPath(CacheFile))
	return subcommands.ExitSuccess
}
