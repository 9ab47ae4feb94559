package cmd

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
	"github.com/etnz/foreignassets/market"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// setup points the global flags at a fresh data directory holding files.
func setup(t *testing.T, files map[string]string) (dir string, out *bytes.Buffer) {
	t.Helper()
	dir = t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	oldData, oldNoInternet, oldStdout := *dataDir, *noInternet, stdout
	*dataDir, *noInternet = dir, true
	out = new(bytes.Buffer)
	stdout = out
	t.Cleanup(func() { *dataDir, *noInternet, stdout = oldData, oldNoInternet, oldStdout })
	return dir, out
}

// run executes c with args as a subcommand.
func run(t *testing.T, c subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("cannot parse %v: %v", args, err)
	}
	return c.Execute(context.Background(), f)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// saveMarket writes a cache where ACME closes at 50 USD every weekday of 2023
// and USD is worth 80 INR every day. BBB has no price.
func saveMarket(t *testing.T, dir string) {
	t.Helper()
	store := market.NewStore()
	for on := range date.Year(2023).Days() {
		store.AddRate(on, decimal.NewFromInt(80))
		if wd := on.Weekday(); wd >= 1 && wd <= 5 {
			store.AddPrice("ACME", on, decimal.NewFromInt(50))
		}
	}
	store.SetCompany("ACME", foreignassets.Company{
		Name:    "Acme Corp",
		Address: "1 Main St",
		ZipCode: "10001",
		Country: "United States",
		Nature:  "Public Limited Company",
	})
	if err := store.Save(filepath.Join(dir, CacheFile)); err != nil {
		t.Fatal(err)
	}
}

const vests = `{
  "BBB": {"vests": [{"vest_date": "2023-05-02", "number_of_shares": 3}]},
  "ACME": {"vests": [
    {"vest_date": "2023-06-15", "number_of_shares": 5},
    {"vest_date": "2023-01-16", "number_of_shares": 10}
  ]}
}`

const sells = `{"ACME": {"sales": [{"sell_date": "2023-09-01", "number_of_shares_sold": 5, "sell_price": 60}]}}`

func TestSchedule(t *testing.T) {
	dir, out := setup(t, map[string]string{VestFile: vests, SellFile: sells})
	saveMarket(t, dir)

	if got := run(t, &scheduleCmd{}, "2023"); got != subcommands.ExitFailure {
		t.Errorf("schedule 2023 = %v, want a failure for BBB", got)
	}

	// 15 shares at 50 × 80 at the peak, 10 left at the close.
	fa := strings.Split(strings.TrimSpace(readFile(t, filepath.Join(dir, FAFile))), "\n")
	if len(fa) != 2 {
		t.Fatalf("FA.csv has %d lines, want a header and ACME:\n%s", len(fa), strings.Join(fa, "\n"))
	}
	want := "1,2,Acme Corp,1 Main St,10001,Public Limited Company,2023-01-16,60000.00,60000.00,40000.00,0,24000.00"
	if fa[1] != want {
		t.Errorf("FA.csv row = %s\nwant %s", fa[1], want)
	}
	if !strings.Contains(out.String(), "BBB") {
		t.Errorf("schedule summary does not report the BBB failure:\n%s", out)
	}

	// input files were sorted.
	if got := readFile(t, filepath.Join(dir, VestFile)); strings.Index(got, "ACME") > strings.Index(got, "BBB") ||
		strings.Index(got, "2023-01-16") > strings.Index(got, "2023-06-15") {
		t.Errorf("vest.json is not sorted:\n%s", got)
	}
}

func TestSchedule_Lots(t *testing.T) {
	dir, _ := setup(t, map[string]string{VestFile: vests, SellFile: sells})
	saveMarket(t, dir)
	out := filepath.Join(t.TempDir(), "lots.csv")

	run(t, &scheduleCmd{}, "-y", "-whole", "-grouping", "lot", "-out", out, "2023")

	fa := strings.Split(strings.TrimSpace(readFile(t, out)), "\n")
	want := []string{
		"1,2,Acme Corp,1 Main St,10001,Public Limited Company,2023-01-16,40000,40000,20000,0,24000",
		"2,2,Acme Corp,1 Main St,10001,Public Limited Company,2023-06-15,20000,20000,20000,0,0",
	}
	if len(fa) != 3 || fa[1] != want[0] || fa[2] != want[1] {
		t.Errorf("FA.csv by lot =\n%s\nwant\n%s", strings.Join(fa[1:], "\n"), strings.Join(want, "\n"))
	}
	if got := readFile(t, filepath.Join(dir, VestFile)); got != vests {
		t.Errorf("vest.json was rewritten despite -y:\n%s", got)
	}
}

func TestSchedule_InvalidYear(t *testing.T) {
	setup(t, map[string]string{VestFile: vests})

	testCases := []struct {
		args []string
		want subcommands.ExitStatus
	}{
		{nil, subcommands.ExitUsageError},
		{[]string{"twenty"}, subcommands.ExitUsageError},
		{[]string{"-grouping", "account", "2023"}, subcommands.ExitUsageError},
		{[]string{"2022"}, subcommands.ExitFailure}, // before the first vest
		{[]string{"99"}, subcommands.ExitFailure},
		{[]string{"9999"}, subcommands.ExitFailure},
	}
	for _, tc := range testCases {
		if got := run(t, &scheduleCmd{}, tc.args...); got != tc.want {
			t.Errorf("schedule %v = %v, want %v", tc.args, got, tc.want)
		}
	}
}

func TestSortAndValidate(t *testing.T) {
	dir, out := setup(t, map[string]string{VestFile: vests})

	if got := run(t, &sortCmd{}); got != subcommands.ExitSuccess {
		t.Fatalf("sort = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, SellFile)); !os.IsNotExist(err) {
		t.Errorf("sort created a sell file: %v", err)
	}
	if got := run(t, &validateCmd{}); got != subcommands.ExitSuccess {
		t.Errorf("validate = %v, want success", got)
	}
	if !strings.Contains(out.String(), "3 vests and 0 sales are consistent") {
		t.Errorf("validate output = %q", out)
	}

	oversold := `{"ACME": {"sales": [{"sell_date": "2023-02-01", "number_of_shares_sold": 11, "sell_price": 60}]}}`
	if err := os.WriteFile(filepath.Join(dir, SellFile), []byte(oversold), 0644); err != nil {
		t.Fatal(err)
	}
	if got := run(t, &validateCmd{}); got != subcommands.ExitFailure {
		t.Errorf("validate(oversold) = %v, want failure", got)
	}
}

func TestFetch_NoInternet(t *testing.T) {
	setup(t, map[string]string{VestFile: vests})
	if got := run(t, &fetchCmd{}, "2023"); got != subcommands.ExitUsageError {
		t.Errorf("fetch -no-internet = %v, want a usage error", got)
	}
}

func TestTopic(t *testing.T) {
	_, out := setup(t, nil)
	if got := run(t, &topicCmd{}, "input"); got != subcommands.ExitSuccess {
		t.Fatalf("topic input = %v", got)
	}
	if !strings.Contains(out.String(), "vest_date") {
		t.Errorf("topic input output:\n%s", out)
	}
	if got := run(t, &topicCmd{}, "nope"); got != subcommands.ExitFailure {
		t.Errorf("topic nope = %v, want failure", got)
	}
}
