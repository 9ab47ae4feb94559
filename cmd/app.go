// Package cmd implements the fas command line application.
package cmd

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/agent"
	"github.com/etnz/foreignassets/logger"
	"github.com/etnz/foreignassets/market"
	"github.com/etnz/foreignassets/sbi"
	"github.com/etnz/foreignassets/yahoo"
	"github.com/google/subcommands"
	"github.com/joho/godotenv"
	"google.golang.org/genai"
)

// Environment variables read by fas, possibly from a .env file.
const (
	EnvDataDir      = "FAS_DATA_DIR"
	EnvLogLevel     = "FAS_LOG_LEVEL"
	EnvHomeCurrency = "FAS_HOME_CURRENCY"
	EnvGeminiKey    = "GEMINI_API_KEY"
)

// Files of the data directory.
const (
	VestFile  = "vest.json"
	SellFile  = "sell.json"
	CacheFile = "public_data.json"
	FAFile    = "FA.csv"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	dataDir    = flag.String("data", "", "Data directory containing vest.json, sell.json and public_data.json (default $"+EnvDataDir+" or the current directory)")
	noInternet = flag.Bool("no-internet", false, "Only use cached data, missing data is reported as a failure")
	verbose    = flag.Bool("v", false, "Enable verbose output with detailed progress information")
)

// stdout receives the reports, tests replace it.
var stdout io.Writer = os.Stdout

// Commands are the subcommands of fas.
var Commands = []subcommands.Command{
	&scheduleCmd{},
	&fetchCmd{},
	&sortCmd{},
	&validateCmd{},
	&topicCmd{},
}

// Setup reads the optional .env file and configures logging. It must be
// called once the global flags are parsed.
func Setup() {
	envErr := godotenv.Load()
	level := os.Getenv(EnvLogLevel)
	if *verbose {
		level = "debug"
	}
	logger.InitLogger(os.Stderr, level)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("cannot load .env file, relying on the environment", "error", envErr)
	}
}

// dataPath returns the path of file in the data directory.
func dataPath(file string) string {
	return filepath.Join(cmp.Or(*dataDir, os.Getenv(EnvDataDir), "."), file)
}

// loadEvents reads the vest and sell files. A missing sell file means no sale.
func loadEvents() ([]foreignassets.VestEvent, []foreignassets.SellEvent, error) {
	vests, err := foreignassets.LoadVests(dataPath(VestFile))
	if err != nil {
		return nil, nil, err
	}
	sells, err := foreignassets.LoadSells(dataPath(SellFile))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no sell file, assuming no sale", "path", dataPath(SellFile))
		return vests, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return vests, sells, nil
}

// sortFiles rewrites the vest and sell files sorted by symbol and date.
// The sell file is only written if it exists.
func sortFiles(vests []foreignassets.VestEvent, sells []foreignassets.SellEvent) error {
	var buf bytes.Buffer
	if err := foreignassets.EncodeVests(&buf, vests); err != nil {
		return err
	}
	if err := os.WriteFile(dataPath(VestFile), buf.Bytes(), 0644); err != nil {
		return err
	}
	if _, err := os.Stat(dataPath(SellFile)); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	buf.Reset()
	if err := foreignassets.EncodeSells(&buf, sells); err != nil {
		return err
	}
	return os.WriteFile(dataPath(SellFile), buf.Bytes(), 0644)
}

// openStore loads the market data cache, empty if it does not exist yet.
func openStore() (*market.Store, error) {
	return market.Load(dataPath(CacheFile))
}

// newUpdater returns an updater filling store from Yahoo Finance and SBI,
// and from Gemini for company profiles when a key is configured.
func newUpdater(ctx context.Context, store *market.Store) *market.Updater {
	quotes := yahoo.New()
	profiles := []market.ProfileSource{quotes}
	if key := os.Getenv(EnvGeminiKey); key != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
		if err != nil {
			slog.Warn("cannot create the Gemini client, company research disabled", "error", err)
		} else {
			profiles = append(profiles, agent.NewResearcher(client))
		}
	}
	return &market.Updater{
		Store:    store,
		Quotes:   quotes,
		Rates:    sbi.New(),
		Profiles: profiles,
	}
}

// update fetches the market data of year missing from store and saves it.
// The data fetched is saved even if some of it could not be.
func update(ctx context.Context, store *market.Store, year int, vests []foreignassets.VestEvent, sells []foreignassets.SellEvent) error {
	err := newUpdater(ctx, store).Update(ctx, year, vests, sells)
	if serr := store.Save(dataPath(CacheFile)); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// printMarkdown renders md for the terminal, or prints it raw when it cannot.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(160))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(stdout, out)
			return
		}
	}
	slog.Debug("cannot render markdown", "error", err)
	fmt.Fprint(stdout, md)
}
