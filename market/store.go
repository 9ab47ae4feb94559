// Package market holds the market data cache used to value holdings: daily closes
// and ranges per symbol, issuer profiles, daily exchange rates and the table of
// schedule country codes.
//
// The cache persists as a single JSON document (public_data.json) and is filled
// by an Updater from online sources.
package market

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// Quote is the daily trading summary of a symbol.
type Quote struct {
	Date  date.Date
	Close decimal.Decimal
	Low   decimal.Decimal
	High  decimal.Decimal
}

// DayRange is the lowest and highest trade of a day.
type DayRange struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

// DefaultCountryCodes maps country names to the numeric codes of the schedule.
var DefaultCountryCodes = map[string]int{
	"United States":  2,
	"United Kingdom": 3,
	"Canada":         4,
	"Germany":        5,
	"France":         6,
	"Japan":          7,
	"Australia":      8,
	"Netherlands":    9,
	"Switzerland":    10,
	"Singapore":      11,
}

type stock struct {
	prices  date.History[decimal.Decimal]
	ranges  date.History[DayRange]
	company *foreignassets.Company
	// closes of earlier days standing for vest dates without a trading session.
	vestPrices date.History[decimal.Decimal]
	fetched    []date.Range
}

// Store is an in-memory market data cache safe for concurrent use.
//
// Store implements foreignassets.Market, foreignassets.HighLowMarket,
// foreignassets.VestPriceMarket and foreignassets.CompanyMarket with exact date
// lookups: it never guesses a value for a day it has not recorded.
type Store struct {
	mu        sync.RWMutex
	stocks    map[string]*stock
	rates     date.History[decimal.Decimal]
	countries map[string]int
}

// NewStore returns an empty store using the DefaultCountryCodes.
func NewStore() *Store {
	return &Store{
		stocks:    make(map[string]*stock),
		countries: maps.Clone(DefaultCountryCodes),
	}
}

// stock returns the series of symbol, creating it if needed. Must be called with the lock held.
func (s *Store) stock(symbol string) *stock {
	st, ok := s.stocks[symbol]
	if !ok {
		st = new(stock)
		s.stocks[symbol] = st
	}
	return st
}

// Price returns the close of symbol recorded on day 'on'.
func (s *Store) Price(symbol string, on date.Date) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stocks[symbol]; ok {
		if p, ok := st.prices.Get(on); ok {
			return p, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("price of %s on %s: %w", symbol, on, foreignassets.ErrUnavailable)
}

// VestPrice returns the close of symbol on day 'on', or the earlier close
// recorded for it by AddVestPrice.
func (s *Store) VestPrice(symbol string, on date.Date) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stocks[symbol]; ok {
		if p, ok := st.prices.Get(on); ok {
			return p, nil
		}
		if p, ok := st.vestPrices.Get(on); ok {
			return p, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("vest price of %s on %s: %w", symbol, on, foreignassets.ErrUnavailable)
}

// HighLow returns the day range of symbol recorded on day 'on'.
func (s *Store) HighLow(symbol string, on date.Date) (low, high decimal.Decimal, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stocks[symbol]; ok {
		if r, ok := st.ranges.Get(on); ok {
			return r.Low, r.High, nil
		}
	}
	return low, high, fmt.Errorf("day range of %s on %s: %w", symbol, on, foreignassets.ErrUnavailable)
}

// Rate returns the exchange rate recorded on day 'on'.
func (s *Store) Rate(on date.Date) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rates.Get(on); ok {
		return r, nil
	}
	return decimal.Decimal{}, fmt.Errorf("exchange rate on %s: %w", on, foreignassets.ErrUnavailable)
}

// CompanyInfo returns the issuer of symbol with its schedule country code.
func (s *Store) CompanyInfo(symbol string) (foreignassets.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[symbol]
	if !ok || st.company == nil {
		return foreignassets.Company{}, fmt.Errorf("company of %s: %w", symbol, foreignassets.ErrUnavailable)
	}
	c := *st.company
	c.CountryCode = s.countryCode(c.Country)
	return c, nil
}

// CountryCode returns the schedule code of country, DefaultCountryCode when unknown.
func (s *Store) CountryCode(country string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countryCode(country)
}

func (s *Store) countryCode(country string) int {
	if code, ok := s.countries[country]; ok {
		return code
	}
	slog.Warn("unknown country code", "country", country, "code", foreignassets.DefaultCountryCode)
	return foreignassets.DefaultCountryCode
}

// AddQuote records the close and the day range of q for symbol.
func (s *Store) AddQuote(symbol string, q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stock(symbol)
	st.prices.Append(q.Date, q.Close)
	if !q.Low.IsZero() || !q.High.IsZero() {
		st.ranges.Append(q.Date, DayRange{Low: q.Low, High: q.High})
	}
}

// AddPrice records the close of symbol on day 'on'.
func (s *Store) AddPrice(symbol string, on date.Date, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock(symbol).prices.Append(on, price)
}

// AddVestPrice records price as the acquisition price of symbol for a vest on day 'on'.
//
// It is not a close: Price still reports no value for that day.
func (s *Store) AddVestPrice(symbol string, on date.Date, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock(symbol).vestPrices.Append(on, price)
}

// MarkFetched records that every close of symbol over r has been fetched.
func (s *Store) MarkFetched(symbol string, r date.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stock(symbol)
	st.fetched = mergeRanges(append(st.fetched, r))
}

// Fetched reports whether every close of symbol over r has been fetched.
func (s *Store) Fetched(symbol string, r date.Range) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[symbol]
	if !ok {
		return false
	}
	for _, f := range st.fetched {
		if f.Contains(r.From) && f.Contains(r.To) {
			return true
		}
	}
	return false
}

// mergeRanges sorts ranges and joins the overlapping or adjacent ones.
func mergeRanges(ranges []date.Range) []date.Range {
	slices.SortFunc(ranges, func(a, b date.Range) int { return a.From.Compare(b.From) })
	var merged []date.Range
	for _, r := range ranges {
		if n := len(merged); n > 0 && !r.From.After(merged[n-1].To.Add(1)) {
			if r.To.After(merged[n-1].To) {
				merged[n-1].To = r.To
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// AddRate records the exchange rate of day 'on'.
func (s *Store) AddRate(on date.Date, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates.Append(on, rate)
}

// SetCompany records the issuer of symbol.
func (s *Store) SetCompany(symbol string, c foreignassets.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CountryCode = 0
	s.stock(symbol).company = &c
}

// HasCompany reports whether the issuer of symbol is known.
func (s *Store) HasCompany(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[symbol]
	return ok && st.company != nil
}

// HasPrice reports whether a close of symbol is recorded on day 'on'.
func (s *Store) HasPrice(symbol string, on date.Date) bool {
	_, err := s.Price(symbol, on)
	return err == nil
}

// HasVestPrice reports whether VestPrice has a value for symbol on day 'on'.
func (s *Store) HasVestPrice(symbol string, on date.Date) bool {
	_, err := s.VestPrice(symbol, on)
	return err == nil
}

// HasRate reports whether an exchange rate is recorded on day 'on'.
func (s *Store) HasRate(on date.Date) bool {
	_, err := s.Rate(on)
	return err == nil
}

// Coverage counts the week days of r with a recorded close of symbol.
func (s *Store) Coverage(symbol string, r date.Range) (cached, weekdays int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for on := range r.Days() {
		if !isWeekend(on) {
			weekdays++
		}
	}
	if st := s.stocks[symbol]; st != nil {
		for on := range st.prices.Between(r) {
			if !isWeekend(on) {
				cached++
			}
		}
	}
	return cached, weekdays
}

// Symbols returns the known symbols in lexicographic order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.stocks))
}

// Merge records every value of o into s. Values of o win on conflicting dates,
// no date of s is ever dropped.
func (s *Store) Merge(o *Store) {
	if s == o {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, ost := range o.stocks {
		st := s.stock(symbol)
		st.prices.Merge(&ost.prices)
		st.ranges.Merge(&ost.ranges)
		st.vestPrices.Merge(&ost.vestPrices)
		st.fetched = mergeRanges(append(st.fetched, ost.fetched...))
		if ost.company != nil {
			c := *ost.company
			st.company = &c
		}
	}
	s.rates.Merge(&o.rates)
	maps.Copy(s.countries, o.countries)
}

// document is the JSON layout of the cache file.
type document struct {
	Stocks         map[string]stockDocument      `json:"stocks"`
	ExchangeRates  map[date.Date]decimal.Decimal `json:"exchange_rates"`
	CountryMapping map[string]int                `json:"country_mapping"`
}

type stockDocument struct {
	Prices      map[date.Date]decimal.Decimal `json:"prices"`
	CompanyInfo *foreignassets.Company        `json:"company_info,omitempty"`
	HighLow     map[date.Date]DayRange        `json:"high_low,omitempty"`
	VestPrices  map[date.Date]decimal.Decimal `json:"vest_prices,omitempty"`
	Fetched     []date.Range                  `json:"fetched,omitempty"`
}

func asMap[T any](h *date.History[T]) map[date.Date]T {
	m := make(map[date.Date]T, h.Len())
	for on, v := range h.Values() {
		m[on] = v
	}
	return m
}

func asHistory[T any](m map[date.Date]T) date.History[T] {
	var h date.History[T]
	for _, on := range slices.SortedFunc(maps.Keys(m), date.Date.Compare) {
		h.Append(on, m[on])
	}
	return h
}

// Decode reads a cache document.
func Decode(r io.Reader) (*Store, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("cannot decode market data: %w", err)
	}
	s := NewStore()
	for symbol, sd := range doc.Stocks {
		st := s.stock(symbol)
		st.prices = asHistory(sd.Prices)
		st.ranges = asHistory(sd.HighLow)
		st.vestPrices = asHistory(sd.VestPrices)
		st.fetched = mergeRanges(sd.Fetched)
		// older files carry an empty object for unknown companies.
		if sd.CompanyInfo != nil && sd.CompanyInfo.Name != "" {
			st.company = sd.CompanyInfo
		}
	}
	s.rates = asHistory(doc.ExchangeRates)
	if len(doc.CountryMapping) > 0 {
		s.countries = doc.CountryMapping
	}
	return s, nil
}

// Encode writes s as a cache document, symbols and dates sorted.
func (s *Store) Encode(w io.Writer) error {
	s.mu.RLock()
	doc := document{
		Stocks:         make(map[string]stockDocument, len(s.stocks)),
		ExchangeRates:  asMap(&s.rates),
		CountryMapping: maps.Clone(s.countries),
	}
	for symbol, st := range s.stocks {
		sd := stockDocument{
			Prices:     asMap(&st.prices),
			HighLow:    asMap(&st.ranges),
			VestPrices: asMap(&st.vestPrices),
			Fetched:    slices.Clone(st.fetched),
		}
		if st.company != nil {
			c := *st.company
			sd.CompanyInfo = &c
		}
		doc.Stocks[symbol] = sd
	}
	s.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Load reads the cache file at path. A missing file is an empty store.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("market data file not found, starting empty", "path", path)
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load error: %w", err)
	}
	defer f.Close()
	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load error: %q: %w", path, err)
	}
	return s, nil
}

// Save replaces the cache file at path with the content of s.
//
// The document is written to a temporary file in the same directory then renamed
// over path, so a reader never sees a partial document.
func (s *Store) Save(path string) (err error) {
	dir := cmp.Or(filepath.Dir(path), ".")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist error: cannot create %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".public_data-*.json")
	if err != nil {
		return fmt.Errorf("persist error: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if err := s.Encode(f); err != nil {
		return fmt.Errorf("persist error: cannot encode %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("persist error: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("persist error: cannot replace %q: %w", path, err)
	}
	slog.Debug("market data saved", "path", path)
	return nil
}

func isWeekend(on date.Date) bool {
	wd := on.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
