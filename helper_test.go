package foreignassets

import (
	"fmt"

	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// testMarket is an in memory Market.
type testMarket struct {
	prices   map[string]map[date.Date]decimal.Decimal
	rates    map[date.Date]decimal.Decimal
	highLows map[string]map[date.Date][2]decimal.Decimal
}

func newTestMarket() *testMarket {
	return &testMarket{
		prices:   make(map[string]map[date.Date]decimal.Decimal),
		rates:    make(map[date.Date]decimal.Decimal),
		highLows: make(map[string]map[date.Date][2]decimal.Decimal),
	}
}

func (m *testMarket) Price(symbol string, on date.Date) (decimal.Decimal, error) {
	if p, ok := m.prices[symbol][on]; ok {
		return p, nil
	}
	return decimal.Decimal{}, fmt.Errorf("price of %s on %s: %w", symbol, on, ErrUnavailable)
}

func (m *testMarket) Rate(on date.Date) (decimal.Decimal, error) {
	if r, ok := m.rates[on]; ok {
		return r, nil
	}
	return decimal.Decimal{}, fmt.Errorf("rate on %s: %w", on, ErrUnavailable)
}

// setPrice sets the close of symbol on every day of [from, to].
func (m *testMarket) setPrice(symbol string, from, to string, price float64) *testMarket {
	if m.prices[symbol] == nil {
		m.prices[symbol] = make(map[date.Date]decimal.Decimal)
	}
	for on := range (date.Range{From: date.MustParse(from), To: date.MustParse(to)}).Days() {
		m.prices[symbol][on] = decimal.NewFromFloat(price)
	}
	return m
}

// setRate sets the exchange rate of every day of [from, to].
func (m *testMarket) setRate(from, to string, rate float64) *testMarket {
	for on := range (date.Range{From: date.MustParse(from), To: date.MustParse(to)}).Days() {
		m.rates[on] = decimal.NewFromFloat(rate)
	}
	return m
}

// highLowMarket adds daily ranges to a testMarket.
type highLowMarket struct{ *testMarket }

func (m highLowMarket) HighLow(symbol string, on date.Date) (low, high decimal.Decimal, err error) {
	hl, ok := m.highLows[symbol][on]
	if !ok {
		return low, high, ErrUnavailable
	}
	return hl[0], hl[1], nil
}

func (m highLowMarket) setHighLow(symbol, on string, low, high float64) highLowMarket {
	if m.highLows[symbol] == nil {
		m.highLows[symbol] = make(map[date.Date][2]decimal.Decimal)
	}
	m.highLows[symbol][date.MustParse(on)] = [2]decimal.Decimal{decimal.NewFromFloat(low), decimal.NewFromFloat(high)}
	return m
}

// companyMarket adds company info to a testMarket.
type companyMarket struct {
	*testMarket
	companies map[string]Company
}

func (m companyMarket) CompanyInfo(symbol string) (Company, error) {
	c, ok := m.companies[symbol]
	if !ok {
		return Company{}, ErrUnavailable
	}
	return c, nil
}

// vestPriceMarket adds vest prices to a testMarket.
type vestPriceMarket struct {
	*testMarket
	vestPrices map[date.Date]decimal.Decimal
}

func (m vestPriceMarket) VestPrice(symbol string, on date.Date) (decimal.Decimal, error) {
	if p, err := m.Price(symbol, on); err == nil {
		return p, nil
	}
	p, ok := m.vestPrices[on]
	if !ok {
		return decimal.Decimal{}, ErrUnavailable
	}
	return p, nil
}

func d(s string) date.Date { return date.MustParse(s) }

func vest(symbol, on string, q int) VestEvent { return NewVest(symbol, d(on), q) }

func sell(symbol, on string, q int, price float64) SellEvent {
	return NewSell(symbol, d(on), q, price)
}

// amount returns the exact value of m without trailing zeros.
func amount(m Money) string { return m.Decimal().String() }
