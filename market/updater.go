package market

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// QuoteSource provides the daily quotes of a symbol.
type QuoteSource interface {
	// Quotes returns the quotes of symbol for the trading days of r, in chronological order.
	Quotes(ctx context.Context, symbol string, r date.Range) ([]Quote, error)
}

// RateSource provides the daily exchange rate.
type RateSource interface {
	Rate(ctx context.Context, on date.Date) (decimal.Decimal, error)
}

// ProfileSource provides the issuer of a symbol.
type ProfileSource interface {
	Profile(ctx context.Context, symbol string) (foreignassets.Company, error)
}

// WalkBack is the number of days a missing close is searched backward for.
const WalkBack = 7

// Updater fills a Store with the data required to compute a schedule.
type Updater struct {
	Store    *Store
	Quotes   QuoteSource
	Rates    RateSource
	Profiles []ProfileSource // tried in order
	Workers  int             // symbols fetched concurrently, 4 when zero
}

// Prefetch records the quotes of symbol over r.
//
// The source is skipped when r was fetched before or when every week day of r
// is cached. Days of r before today are then marked as fetched, so market
// holidays do not trigger a new fetch.
func (u *Updater) Prefetch(ctx context.Context, symbol string, r date.Range) error {
	if u.Store.Fetched(symbol, r) {
		slog.Debug("quotes already fetched", "symbol", symbol, "range", r)
		return nil
	}
	if cached, weekdays := u.Store.Coverage(symbol, r); cached == weekdays {
		slog.Debug("quotes already cached", "symbol", symbol, "range", r, "weekdays", weekdays)
		return nil
	}
	quotes, err := u.Quotes.Quotes(ctx, symbol, r)
	if err != nil {
		return fmt.Errorf("cannot fetch quotes of %s over %s: %w", symbol, r, err)
	}
	n := 0
	for _, q := range quotes {
		if r.Contains(q.Date) {
			u.Store.AddQuote(symbol, q)
			n++
		}
	}
	// today's close may not be known yet.
	done := r
	if yesterday := date.Today().Add(-1); done.To.After(yesterday) {
		done.To = yesterday
	}
	if !done.To.Before(done.From) {
		u.Store.MarkFetched(symbol, done)
	}
	slog.Info("quotes fetched", "symbol", symbol, "range", r, "count", n)
	return nil
}

// PrefetchDay records the close of symbol on day 'on', as needed to price a vest.
//
// When 'on' is not a trading day, the latest close of the WalkBack previous days
// is recorded as the vest price of 'on', never as its close.
func (u *Updater) PrefetchDay(ctx context.Context, symbol string, on date.Date) error {
	if u.Store.HasVestPrice(symbol, on) {
		return nil
	}
	r := date.Range{From: on.Add(1 - WalkBack), To: on}
	quotes, err := u.Quotes.Quotes(ctx, symbol, r)
	if err != nil {
		return fmt.Errorf("cannot fetch close of %s on %s: %w", symbol, on, err)
	}
	var last *Quote
	for i, q := range quotes {
		if r.Contains(q.Date) {
			u.Store.AddQuote(symbol, q)
			last = &quotes[i]
		}
	}
	if last == nil {
		return fmt.Errorf("no close of %s in %s: %w", symbol, r, foreignassets.ErrUnavailable)
	}
	if last.Date != on {
		slog.Info("using an earlier close", "symbol", symbol, "date", on, "close_date", last.Date, "close", last.Close)
		u.Store.AddVestPrice(symbol, on, last.Close)
	}
	return nil
}

// PrefetchRates records the exchange rate of every day missing one.
//
// Days the source has no rate for are logged and skipped.
func (u *Updater) PrefetchRates(ctx context.Context, days []date.Date) error {
	n := 0
	for _, on := range days {
		if u.Store.HasRate(on) {
			continue
		}
		rate, err := u.Rates.Rate(ctx, on)
		if errors.Is(err, foreignassets.ErrUnavailable) {
			slog.Warn("no exchange rate", "date", on, "err", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("cannot fetch exchange rate on %s: %w", on, err)
		}
		u.Store.AddRate(on, rate)
		n++
	}
	if n > 0 {
		slog.Info("exchange rates fetched", "count", n)
	}
	return nil
}

// PrefetchCompany records the issuer of symbol from the first profile source that knows it.
func (u *Updater) PrefetchCompany(ctx context.Context, symbol string) error {
	if u.Store.HasCompany(symbol) {
		return nil
	}
	var errs []error
	for _, p := range u.Profiles {
		c, err := p.Profile(ctx, symbol)
		if err != nil {
			slog.Warn("company profile unavailable", "symbol", symbol, "err", err)
			errs = append(errs, err)
			continue
		}
		u.Store.SetCompany(symbol, c)
		slog.Info("company profile fetched", "symbol", symbol, "name", c.Name)
		return nil
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("no company profile for %s: %w", symbol, errors.Join(errs...))
}

// Update fetches everything missing from the store to compute the schedule of
// year: the quotes of the year and the closes of vest dates for every symbol,
// company profiles, and the exchange rates of every day of the year and of every
// event date.
//
// Symbols are fetched concurrently. A failure does not stop other fetches, all
// failures are returned joined: the engine reports the data that is still missing.
func (u *Updater) Update(ctx context.Context, year int, vests []foreignassets.VestEvent, sells []foreignassets.SellEvent) error {
	yr := date.Year(year)
	closes := make(map[string][]date.Date)
	rateDays := slices.Collect(yr.Days())
	for _, v := range vests {
		if v.Date.After(yr.To) {
			continue
		}
		closes[v.Symbol] = append(closes[v.Symbol], v.Date)
		rateDays = append(rateDays, v.Date)
	}
	for _, s := range sells {
		if s.Date.After(yr.To) {
			continue
		}
		rateDays = append(rateDays, s.Date)
	}
	slices.SortFunc(rateDays, date.Date.Compare)
	rateDays = slices.Compact(rateDays)

	var (
		mu   sync.Mutex
		errs []error
	)
	report := func(err error) {
		if err == nil {
			return
		}
		slog.Error("fetch failed", "err", err)
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cmp.Or(u.Workers, 4))
	for _, symbol := range slices.Sorted(maps.Keys(closes)) {
		g.Go(func() error {
			report(u.Prefetch(ctx, symbol, yr))
			for _, on := range closes[symbol] {
				report(u.PrefetchDay(ctx, symbol, on))
			}
			report(u.PrefetchCompany(ctx, symbol))
			return ctx.Err()
		})
	}
	g.Go(func() error {
		report(u.PrefetchRates(ctx, rateDays))
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
