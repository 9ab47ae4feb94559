package foreignassets

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// Grouping controls how holdings are split into schedule rows.
type Grouping int

const (
	// BySymbol reports one row per symbol.
	BySymbol Grouping = iota
	// ByLot reports one row per vest.
	ByLot
)

func (g Grouping) String() string {
	switch g {
	case BySymbol:
		return "symbol"
	case ByLot:
		return "lot"
	default:
		return fmt.Sprintf("Grouping(%d)", int(g))
	}
}

// ParseGrouping parses "symbol" or "lot".
func ParseGrouping(s string) (Grouping, error) {
	switch strings.ToLower(s) {
	case "symbol", "":
		return BySymbol, nil
	case "lot":
		return ByLot, nil
	default:
		return BySymbol, fmt.Errorf("unknown grouping %q, want symbol or lot", s)
	}
}

// Config parameterizes a schedule computation.
type Config struct {
	Year     int
	Grouping Grouping

	// HomeCurrency is the reporting currency, INR by default.
	HomeCurrency string
	// SecurityCurrency is the currency of prices and sales, USD by default.
	SecurityCurrency string
	// ValidateOverrides checks vest price overrides against the day's high and low.
	ValidateOverrides bool
}

const (
	DefaultHomeCurrency     = "INR"
	DefaultSecurityCurrency = "USD"
)

// Schedule is the foreign assets schedule of a tax year.
type Schedule struct {
	Year         int
	HomeCurrency string
	Grouping     Grouping
	Rows         []Valuation
	Total        Total
}

// Total sums the rows of a schedule.
type Total struct {
	InitialValue    Money
	PeakValue       Money
	ClosingValue    Money
	Proceeds        Money
	AcquisitionCost Money
}

func (t Total) add(v Valuation) Total {
	return Total{
		InitialValue:    t.InitialValue.Add(v.InitialValue),
		PeakValue:       t.PeakValue.Add(v.PeakValue),
		ClosingValue:    t.ClosingValue.Add(v.ClosingValue),
		Proceeds:        t.Proceeds.Add(v.Proceeds),
		AcquisitionCost: t.AcquisitionCost.Add(v.AcquisitionCost),
	}
}

// Held returns the rows held at some point during the year.
func (s *Schedule) Held() []Valuation {
	var held []Valuation
	for _, v := range s.Rows {
		if v.Held {
			held = append(held, v)
		}
	}
	return held
}

// ComputeSchedule values every symbol found in vests and sells over cfg.Year.
//
// Symbols are processed independently: the failures of one symbol are
// collected and do not prevent the others from being valued. Rows are sorted
// by symbol, then by acquisition date.
func ComputeSchedule(vests []VestEvent, sells []SellEvent, cfg Config, market Market) (*Schedule, []Failure) {
	cfg.HomeCurrency = cmp.Or(cfg.HomeCurrency, DefaultHomeCurrency)
	cfg.SecurityCurrency = cmp.Or(cfg.SecurityCurrency, DefaultSecurityCurrency)

	zero := M(0, cfg.HomeCurrency)
	schedule := &Schedule{
		Year:         cfg.Year,
		HomeCurrency: cfg.HomeCurrency,
		Grouping:     cfg.Grouping,
		Total:        Total{zero, zero, zero, zero, zero},
	}
	var failures []Failure

	v := newValuer(market, cfg.Year, cfg.SecurityCurrency, cfg.HomeCurrency)
	for _, symbol := range symbols(vests, sells) {
		rows, err := computeSymbol(v, symbol, vests, sells, cfg)
		if err != nil {
			f := newFailure(symbol, err)
			slog.Error("cannot value holding", "symbol", symbol, "kind", f.Kind, "date", f.Date, "error", err)
			failures = append(failures, f)
			continue
		}
		company := companyOf(market, symbol)
		for _, row := range rows {
			row.Company = company
			schedule.Rows = append(schedule.Rows, row)
			schedule.Total = schedule.Total.add(row)
		}
	}
	return schedule, failures
}

// symbols returns the sorted set of symbols of vests and sells.
func symbols(vests []VestEvent, sells []SellEvent) []string {
	var symbols []string
	for _, v := range vests {
		symbols = append(symbols, v.Symbol)
	}
	for _, s := range sells {
		symbols = append(symbols, s.Symbol)
	}
	slices.Sort(symbols)
	return slices.Compact(symbols)
}

// computeSymbol builds the ledger of symbol and values it according to cfg.
func computeSymbol(v *valuer, symbol string, vests []VestEvent, sells []SellEvent, cfg Config) ([]Valuation, error) {
	ledger, err := buildLedger(v.market, symbol, vests, sells, v.year.To, cfg.ValidateOverrides)
	if err != nil {
		return nil, err
	}
	closes, err := v.closes(symbol)
	if err != nil {
		return nil, err
	}
	if cfg.Grouping == BySymbol {
		row, err := v.value(ledger, closes)
		if err != nil {
			return nil, err
		}
		return []Valuation{row}, nil
	}
	var rows []Valuation
	for i, lot := range ledger.Lots() {
		row, err := v.value(ledger, closes, i)
		if err != nil {
			return nil, err
		}
		row.AcquiredOn = lot.VestDate
		rows = append(rows, row)
	}
	return rows, nil
}

// sortedVests returns the vests of symbol, stable sorted by date.
func sortedVests(vests []VestEvent, symbol string) []VestEvent {
	var sorted []VestEvent
	for _, e := range vests {
		if e.Symbol == symbol {
			sorted = append(sorted, e)
		}
	}
	slices.SortStableFunc(sorted, func(a, b VestEvent) int { return a.Date.Compare(b.Date) })
	return sorted
}

// sortedSells returns the sales of symbol, stable sorted by date.
func sortedSells(sells []SellEvent, symbol string) []SellEvent {
	var sorted []SellEvent
	for _, e := range sells {
		if e.Symbol == symbol {
			sorted = append(sorted, e)
		}
	}
	slices.SortStableFunc(sorted, func(a, b SellEvent) int { return a.Date.Compare(b.Date) })
	return sorted
}

// buildLedger returns the ledger of symbol with every event up to 'until' applied.
func buildLedger(market Market, symbol string, vests []VestEvent, sells []SellEvent, until date.Date, validateOverrides bool) (*Ledger, error) {
	ledger := NewLedger(symbol)
	for _, e := range sortedVests(vests, symbol) {
		if e.Date.After(until) {
			break
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		price, err := acquisitionPrice(market, e)
		if err != nil {
			return nil, err
		}
		if validateOverrides {
			if err := checkOverride(market, e); err != nil {
				return nil, err
			}
		}
		if err := ledger.AddVest(e, price); err != nil {
			return nil, err
		}
	}
	for _, e := range sortedSells(sells, symbol) {
		if e.Date.After(until) {
			break
		}
		if _, err := ledger.ApplySale(e); err != nil {
			return nil, err
		}
	}
	return ledger, nil
}

// acquisitionPrice returns the override of e if any, or the market price of the vest day.
func acquisitionPrice(market Market, e VestEvent) (decimal.Decimal, error) {
	if e.Override != nil {
		return *e.Override, nil
	}
	price, err := market.Price(e.Symbol, e.Date)
	if vm, ok := market.(VestPriceMarket); ok && errors.Is(err, ErrUnavailable) {
		price, err = vm.VestPrice(e.Symbol, e.Date)
	}
	if err != nil {
		return decimal.Decimal{}, &MissingPriceError{Symbol: e.Symbol, Date: e.Date, Err: err}
	}
	return price, nil
}

// companyOf returns the company behind symbol, or a default one.
func companyOf(market Market, symbol string) Company {
	cm, ok := market.(CompanyMarket)
	if !ok {
		return DefaultCompany(symbol)
	}
	c, err := cm.CompanyInfo(symbol)
	if err != nil {
		slog.Warn("using default company info", "symbol", symbol, "error", err)
		return DefaultCompany(symbol)
	}
	return c
}
