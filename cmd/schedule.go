package cmd

import (
	"bytes"
	"cmp"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
	"github.com/etnz/foreignassets/renderer"
	"github.com/google/subcommands"
)

// scheduleCmd holds the flags for the 'schedule' subcommand.
type scheduleCmd struct {
	skipValidation bool
	noSort         bool
	grouping       string
	whole          bool
	all            bool
	out            string
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "compute the foreign assets schedule of a year" }
func (*scheduleCmd) Usage() string {
	return `fas schedule [-x] [-y] [-grouping symbol|lot] [-whole] [-all] [-out <file>] <year>

  Values every holding of vest.json and sell.json over the calendar year,
  writes FA.csv and prints a summary. Missing market data is fetched first
  unless -no-internet is set.

  Exits with status 1 if a holding could not be valued.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.skipValidation, "x", false, "Exclude vest price validation against the day's high and low")
	f.BoolVar(&c.noSort, "y", false, "Skip sorting of the input JSON files")
	f.StringVar(&c.grouping, "grouping", "symbol", "One row per 'symbol' or per vest 'lot'")
	f.BoolVar(&c.whole, "whole", false, "Round amounts to whole units of the home currency")
	f.BoolVar(&c.all, "all", false, "Also list holdings not held during the year in the summary")
	f.StringVar(&c.out, "out", "", "Path of the CSV schedule (default FA.csv in the data directory)")
}

func (c *scheduleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: the tax year argument is required, e.g. fas schedule 2024")
		return subcommands.ExitUsageError
	}
	year, err := strconv.Atoi(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid year %q\n", f.Arg(0))
		return subcommands.ExitUsageError
	}
	grouping, err := foreignassets.ParseGrouping(c.grouping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	vests, sells, err := loadEvents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input files: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := foreignassets.ValidateYear(year, date.Today(), vests); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if !c.noSort {
		if err := sortFiles(vests, sells); err != nil {
			slog.Warn("cannot sort input files", "error", err)
		}
	}

	store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading market data cache: %v\n", err)
		return subcommands.ExitFailure
	}
	if !*noInternet {
		if err := update(ctx, store, year, vests, sells); err != nil {
			slog.Warn("some market data could not be fetched", "error", err)
		}
	}

	cfg := foreignassets.Config{
		Year:              year,
		Grouping:          grouping,
		HomeCurrency:      os.Getenv(EnvHomeCurrency),
		ValidateOverrides: !c.skipValidation,
	}
	schedule, failures := foreignassets.ComputeSchedule(vests, sells, cfg, store)

	opts := renderer.Options{Whole: c.whole, All: c.all}
	out := cmp.Or(c.out, dataPath(FAFile))
	var buf bytes.Buffer
	if err := renderer.WriteFA(&buf, schedule, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schedule: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schedule: %v\n", err)
		return subcommands.ExitFailure
	}
	slog.Info("schedule written", "path", out, "rows", len(schedule.Held()))

	printMarkdown(renderer.RenderSummary(renderer.NewSummary(schedule, failures, opts), opts))
	if len(failures) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
