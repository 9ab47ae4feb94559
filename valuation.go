package foreignassets

import (
	"errors"
	"slices"

	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// Valuation is the value of a holding over a tax year, in the home currency.
type Valuation struct {
	Symbol  string
	Company Company
	// AcquiredOn is the earliest vest date of the lots held during the year.
	AcquiredOn date.Date
	// Held is true if a share of the holding was owned at some point of the year.
	Held bool

	InitialValue    Money
	PeakValue       Money
	PeakDate        date.Date // zero when nothing was held on a priced day.
	ClosingQuantity Quantity
	ClosingDate     date.Date // day of the close used for ClosingValue.
	ClosingValue    Money
	Proceeds        Money
	AcquisitionCost Money
}

// valuer values ledgers over a single year.
type valuer struct {
	market       Market
	year         date.Range
	source, home string
	rates        map[date.Date]decimal.Decimal
}

func newValuer(market Market, year int, source, home string) *valuer {
	return &valuer{
		market: market,
		year:   date.Year(year),
		source: source,
		home:   home,
		rates:  make(map[date.Date]decimal.Decimal),
	}
}

// rate returns the memoized exchange rate of day 'on'.
func (v *valuer) rate(on date.Date) (decimal.Decimal, error) {
	if r, ok := v.rates[on]; ok {
		return r, nil
	}
	r, err := v.market.Rate(on)
	if err != nil {
		return decimal.Decimal{}, &MissingRateError{Date: on, Err: err}
	}
	v.rates[on] = r
	return r, nil
}

// toHome converts unitPrice × q from the security currency into the home currency using the rate of day 'on'.
func (v *valuer) toHome(unitPrice decimal.Decimal, q Quantity, on date.Date) (Money, error) {
	r, err := v.rate(on)
	if err != nil {
		return Money{}, err
	}
	return M(unitPrice, v.source).Mul(q).Convert(r, v.home), nil
}

// quote is a market close price.
type quote struct {
	on    date.Date
	price decimal.Decimal
}

// closes returns the closes of symbol for every priced day of the year.
func (v *valuer) closes(symbol string) ([]quote, error) {
	var closes []quote
	for on := range v.year.Days() {
		p, err := v.market.Price(symbol, on)
		if errors.Is(err, ErrUnavailable) {
			continue // week-ends and holidays
		}
		if err != nil {
			return nil, &MissingPriceError{Symbol: symbol, Date: on, Err: err}
		}
		closes = append(closes, quote{on, p})
	}
	return closes, nil
}

// value computes the valuation of the given lots of the ledger, or of all the lots if none is given.
func (v *valuer) value(l *Ledger, closes []quote, lots ...int) (Valuation, error) {
	selected := func(int) bool { return true }
	if len(lots) > 0 {
		selected = func(i int) bool { return slices.Contains(lots, i) }
	}
	zero := M(0, v.home)
	val := Valuation{
		Symbol:          l.Symbol(),
		InitialValue:    zero,
		PeakValue:       zero,
		ClosingValue:    zero,
		Proceeds:        zero,
		AcquisitionCost: zero,
	}
	timeline := l.Timeline(lots...)

	// Peak value: the max over priced days of quantity × price × rate.
	for _, c := range closes {
		q := timeline.At(c.on)
		if !q.IsPositive() {
			continue
		}
		value, err := v.toHome(c.price, q, c.on)
		if err != nil {
			return Valuation{}, err
		}
		// strictly greater so that ties resolve to the earliest day.
		if val.PeakDate.IsZero() || value.GreaterThan(val.PeakValue) {
			val.PeakValue, val.PeakDate = value, c.on
		}
	}

	// Closing value, at the last close of the year.
	val.ClosingQuantity = timeline.At(v.year.To)
	if val.ClosingQuantity.IsPositive() {
		if len(closes) == 0 {
			return Valuation{}, &MissingPriceError{Symbol: l.Symbol(), Date: v.year.To, Err: ErrUnavailable}
		}
		last := closes[len(closes)-1]
		value, err := v.toHome(last.price, val.ClosingQuantity, last.on)
		if err != nil {
			return Valuation{}, err
		}
		val.ClosingValue, val.ClosingDate = value, last.on
		// shares vested after the last close are only valued by the closing value,
		// dated at the end of the year when they are held.
		if val.PeakDate.IsZero() || value.GreaterThan(val.PeakValue) {
			val.PeakValue, val.PeakDate = value, v.year.To
			if timeline.At(last.on).Equal(val.ClosingQuantity) {
				val.PeakDate = last.on
			}
		}
	}

	// Proceeds and acquisition cost of the shares sold during the year.
	for _, c := range l.Consumptions() {
		if !v.year.Contains(c.SellDate) {
			continue
		}
		for _, t := range c.Taken {
			if !selected(t.Lot) {
				continue
			}
			proceeds, err := v.toHome(c.UnitPrice, t.Quantity, c.SellDate)
			if err != nil {
				return Valuation{}, err
			}
			lot := l.lots[t.Lot]
			cost, err := v.toHome(lot.UnitPrice, t.Quantity, lot.VestDate)
			if err != nil {
				return Valuation{}, err
			}
			val.Proceeds = val.Proceeds.Add(proceeds)
			val.AcquisitionCost = val.AcquisitionCost.Add(cost)
		}
	}

	// Initial value of the lots held during the year, at their acquisition price.
	for i, lot := range l.Lots() {
		if !selected(i) {
			continue
		}
		start := lot.VestDate
		if start.Before(v.year.From) {
			start = v.year.From
		}
		if start.After(v.year.To) {
			continue
		}
		q := lot.Original.Sub(l.consumedBefore(i, start))
		if !q.IsPositive() {
			continue
		}
		initial, err := v.toHome(lot.UnitPrice, q, lot.VestDate)
		if err != nil {
			return Valuation{}, err
		}
		if !val.Held {
			val.Held, val.AcquiredOn = true, lot.VestDate
		}
		val.InitialValue = val.InitialValue.Add(initial)
	}
	return val, nil
}

// consumedBefore returns the quantity taken from lot i by sales strictly before 'on'.
func (l *Ledger) consumedBefore(i int, on date.Date) Quantity {
	var q Quantity
	for _, c := range l.consumptions {
		if !c.SellDate.Before(on) {
			break
		}
		for _, t := range c.Taken {
			if t.Lot == i {
				q = q.Add(t.Quantity)
			}
		}
	}
	return q
}
