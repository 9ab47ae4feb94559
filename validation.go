package foreignassets

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// checkOverride verifies that the price override of e lies within the day's
// range when the market knows it.
func checkOverride(market Market, e VestEvent) error {
	hl, ok := market.(HighLowMarket)
	if !ok || e.Override == nil {
		return nil
	}
	low, high, err := hl.HighLow(e.Symbol, e.Date)
	if err != nil {
		slog.Warn("cannot validate vest price", "symbol", e.Symbol, "date", e.Date, "price", e.Override, "error", err)
		return nil
	}
	if e.Override.LessThan(low) || e.Override.GreaterThan(high) {
		return &InvalidEventError{
			Symbol: e.Symbol,
			Date:   e.Date,
			Reason: fmt.Sprintf("vest price %s outside of the day range [%s, %s]", e.Override, low, high),
		}
	}
	return nil
}

// Validate replays the vests and sales of every symbol, without market data,
// and returns all the inconsistencies found.
func Validate(vests []VestEvent, sells []SellEvent) error {
	var errs []error
	for _, symbol := range symbols(vests, sells) {
		ledger := NewLedger(symbol)
		for _, e := range sortedVests(vests, symbol) {
			if err := ledger.AddVest(e, decimal.Zero); err != nil {
				errs = append(errs, err)
			}
		}
		for _, e := range sortedSells(sells, symbol) {
			if _, err := ledger.ApplySale(e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ValidateYear checks that year is a completed year that can be reported:
// a four digit year before today's year and not before the earliest vest.
func ValidateYear(year int, today date.Date, vests []VestEvent) error {
	if year < 1000 || year > 9999 {
		return fmt.Errorf("year must be a 4-digit number (e.g. 2024), got %d", year)
	}
	if year >= today.Year() {
		return fmt.Errorf("year %d is not completed yet, only years before %d can be reported", year, today.Year())
	}
	if len(vests) == 0 {
		return errors.New("no vest found")
	}
	earliest := vests[0].Date
	for _, v := range vests[1:] {
		if v.Date.Before(earliest) {
			earliest = v.Date
		}
	}
	if year < earliest.Year() {
		return fmt.Errorf("year %d is earlier than the earliest vest (%s), pick a year between %d and %d", year, earliest, earliest.Year(), today.Year()-1)
	}
	return nil
}
