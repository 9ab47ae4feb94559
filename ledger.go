package foreignassets

import (
	"iter"
	"slices"

	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// Lot is the set of shares granted by a single vest.
type Lot struct {
	Symbol    string
	VestDate  date.Date
	Original  Quantity
	Remaining Quantity
	UnitPrice decimal.Decimal // acquisition price per share, in the security currency
}

// Taken is the quantity a sale consumed from one lot.
type Taken struct {
	Lot      int // index of the lot in the ledger
	Quantity Quantity
}

// Consumption records how a sale was matched against the lots.
type Consumption struct {
	Symbol    string
	SellDate  date.Date
	UnitPrice decimal.Decimal
	Taken     []Taken
}

// Quantity returns the total quantity sold.
func (c Consumption) Quantity() Quantity {
	var q Quantity
	for _, t := range c.Taken {
		q = q.Add(t.Quantity)
	}
	return q
}

// Ledger holds the lots of a single symbol and matches sales against them
// first in first out.
//
// Vests must all be added before the first sale, and sales must be applied in
// chronological order.
type Ledger struct {
	symbol       string
	lots         []Lot
	consumptions []Consumption
}

// NewLedger returns an empty ledger for symbol.
func NewLedger(symbol string) *Ledger { return &Ledger{symbol: symbol} }

func (l *Ledger) Symbol() string { return l.symbol }

// Lots returns the lots ordered by vest date. Indexes are stable lot references.
func (l *Ledger) Lots() []Lot { return l.lots }

// Consumptions returns the applied sales in chronological order.
func (l *Ledger) Consumptions() []Consumption { return l.consumptions }

// AddVest appends a new lot for v, acquired at unitPrice per share.
//
// Lots are kept ordered by vest date, vests on the same day keep their
// insertion order.
func (l *Ledger) AddVest(v VestEvent, unitPrice decimal.Decimal) error {
	if v.Symbol != l.symbol {
		return &InvalidEventError{Symbol: v.Symbol, Date: v.Date, Reason: "vest does not belong to ledger " + l.symbol}
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if len(l.consumptions) > 0 {
		return &InvalidEventError{Symbol: v.Symbol, Date: v.Date, Reason: "vest added after a sale was matched"}
	}
	// insert after every lot vested on or before that day.
	i, _ := slices.BinarySearchFunc(l.lots, v.Date, func(lot Lot, on date.Date) int {
		if lot.VestDate.After(on) {
			return 1
		}
		return -1
	})
	l.lots = slices.Insert(l.lots, i, Lot{
		Symbol:    v.Symbol,
		VestDate:  v.Date,
		Original:  v.Quantity,
		Remaining: v.Quantity,
		UnitPrice: unitPrice,
	})
	return nil
}

// available returns the quantity remaining in lots vested on or before 'on'.
func (l *Ledger) available(on date.Date) Quantity {
	var q Quantity
	for _, lot := range l.lots {
		if lot.VestDate.After(on) {
			break
		}
		q = q.Add(lot.Remaining)
	}
	return q
}

// ApplySale matches s against the lots in vest date order and records the
// consumption.
//
// Only lots vested on or before the sale date are eligible. If they do not hold
// enough shares an InsufficientSharesError is returned and the ledger is left
// unchanged.
func (l *Ledger) ApplySale(s SellEvent) (Consumption, error) {
	if s.Symbol != l.symbol {
		return Consumption{}, &InvalidEventError{Symbol: s.Symbol, Date: s.Date, Reason: "sale does not belong to ledger " + l.symbol}
	}
	if err := s.Validate(); err != nil {
		return Consumption{}, err
	}
	if len(l.lots) == 0 || s.Date.Before(l.lots[0].VestDate) {
		return Consumption{}, &InvalidEventError{Symbol: s.Symbol, Date: s.Date, Reason: "sale before any vest"}
	}
	if n := len(l.consumptions); n > 0 && s.Date.Before(l.consumptions[n-1].SellDate) {
		return Consumption{}, &InvalidEventError{Symbol: s.Symbol, Date: s.Date, Reason: "sale out of chronological order"}
	}
	if available := l.available(s.Date); available.LessThan(s.Quantity) {
		return Consumption{}, &InsufficientSharesError{Symbol: s.Symbol, Date: s.Date, Requested: s.Quantity, Available: available}
	}

	c := Consumption{Symbol: s.Symbol, SellDate: s.Date, UnitPrice: s.UnitPrice}
	needed := s.Quantity
	for i := range l.lots {
		if needed.IsZero() {
			break
		}
		lot := &l.lots[i]
		if lot.Remaining.IsZero() {
			continue
		}
		taken := lot.Remaining.Min(needed)
		lot.Remaining = lot.Remaining.Sub(taken)
		needed = needed.Sub(taken)
		c.Taken = append(c.Taken, Taken{Lot: i, Quantity: taken})
	}
	l.consumptions = append(l.consumptions, c)
	return c, nil
}

// SnapshotQuantity returns the quantity held on day 'on', after that day's
// vests and sales.
func (l *Ledger) SnapshotQuantity(on date.Date) Quantity {
	return l.Timeline().At(on)
}

// Timeline returns the quantity held over time, restricted to the given lot
// indexes, or to every lot if none is given.
func (l *Ledger) Timeline(lots ...int) *Timeline {
	selected := func(int) bool { return true }
	if len(lots) > 0 {
		selected = func(i int) bool { return slices.Contains(lots, i) }
	}

	deltas := new(date.History[Quantity])
	add := func(on date.Date, q Quantity) {
		prev, _ := deltas.Get(on)
		deltas.Append(on, prev.Add(q))
	}
	for i, lot := range l.lots {
		if selected(i) {
			add(lot.VestDate, lot.Original)
		}
	}
	for _, c := range l.consumptions {
		for _, t := range c.Taken {
			if selected(t.Lot) {
				add(c.SellDate, Quantity{}.Sub(t.Quantity))
			}
		}
	}

	// reduce deltas into running totals.
	t := new(Timeline)
	var total Quantity
	for on, delta := range deltas.Values() {
		total = total.Add(delta)
		t.totals.Append(on, total)
	}
	return t
}

// Timeline is a piecewise constant quantity held over time.
type Timeline struct {
	totals date.History[Quantity]
}

// At returns the quantity held at the end of day 'on'.
func (t *Timeline) At(on date.Date) Quantity {
	q, _ := t.totals.ValueAsOf(on)
	return q
}

// Changes iterates over the days where the quantity changes, with the new quantity.
func (t *Timeline) Changes() iter.Seq2[date.Date, Quantity] { return t.totals.Values() }
