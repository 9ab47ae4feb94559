package foreignassets

import (
	"errors"
	"testing"

	"github.com/etnz/foreignassets/date"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// row is a comparable summary of a Valuation.
type row struct {
	Symbol, AcquiredOn                       string
	Held                                     bool
	Initial, Peak, PeakDate, Closing, Closed string
	Proceeds, Cost                           string
}

func summarize(vals []Valuation) []row {
	var rows []row
	for _, v := range vals {
		rows = append(rows, row{
			Symbol:     v.Symbol,
			AcquiredOn: v.AcquiredOn.String(),
			Held:       v.Held,
			Initial:    amount(v.InitialValue),
			Peak:       amount(v.PeakValue),
			PeakDate:   v.PeakDate.String(),
			Closing:    amount(v.ClosingValue),
			Closed:     v.ClosingQuantity.String(),
			Proceeds:   amount(v.Proceeds),
			Cost:       amount(v.AcquisitionCost),
		})
	}
	return rows
}

func compute(t *testing.T, vests []VestEvent, sells []SellEvent, cfg Config, market Market) *Schedule {
	t.Helper()
	s, failures := ComputeSchedule(vests, sells, cfg, market)
	if len(failures) > 0 {
		t.Fatalf("ComputeSchedule() unexpected failures: %v", failures)
	}
	return s
}

// 100 shares, flat price and rate all year.
func TestComputeSchedule_FlatHolding(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-31", 50).
		setRate("2023-01-01", "2023-12-31", 83)

	s := compute(t, []VestEvent{vest("ACME", "2023-01-15", 100)}, nil, Config{Year: 2023}, market)

	want := []row{{
		Symbol: "ACME", AcquiredOn: "2023-01-15", Held: true,
		Initial: "415000", Peak: "415000", PeakDate: "2023-01-15",
		Closing: "415000", Closed: "100", Proceeds: "0", Cost: "0",
	}}
	if diff := cmp.Diff(want, summarize(s.Rows)); diff != "" {
		t.Errorf("ComputeSchedule() rows mismatch (-want +got):\n%s", diff)
	}
	if s.HomeCurrency != "INR" || s.Total.PeakValue.Currency() != "INR" {
		t.Errorf("ComputeSchedule() currency = %q, %q want INR", s.HomeCurrency, s.Total.PeakValue.Currency())
	}
}

// The peak happens after a sale, on a reduced quantity.
func TestComputeSchedule_PeakAfterSale(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-05-31", 40).
		setPrice("ACME", "2023-06-01", "2023-12-31", 60).
		setRate("2023-01-01", "2023-05-31", 80).
		setRate("2023-06-01", "2023-12-31", 90)

	s := compute(t,
		[]VestEvent{vest("ACME", "2023-01-10", 200)},
		[]SellEvent{sell("ACME", "2023-06-01", 75, 60)},
		Config{Year: 2023}, market)

	got := s.Rows[0]
	// 125 × 60 × 90, and not 200 × 60 × 90 nor 200 × 40 × 80.
	if amount(got.PeakValue) != "675000" || got.PeakDate != d("2023-06-01") {
		t.Errorf("Peak = %s on %v want 675000 on 2023-06-01", amount(got.PeakValue), got.PeakDate)
	}
	if amount(got.Proceeds) != "405000" { // 75 × 60 × 90
		t.Errorf("Proceeds = %s want 405000", amount(got.Proceeds))
	}
	if amount(got.AcquisitionCost) != "240000" { // 75 × 40 × 80
		t.Errorf("AcquisitionCost = %s want 240000", amount(got.AcquisitionCost))
	}
	if amount(got.ClosingValue) != "675000" || !got.ClosingQuantity.Equal(Q(125)) {
		t.Errorf("Closing = %s (%v shares) want 675000 (125 shares)", amount(got.ClosingValue), got.ClosingQuantity)
	}
}

// One symbol failing does not prevent the others from being valued.
func TestComputeSchedule_PartialFailure(t *testing.T) {
	market := newTestMarket().
		setPrice("AAA", "2023-01-01", "2023-12-31", 10).
		setPrice("BBB", "2023-01-01", "2023-12-31", 20).
		setRate("2023-01-01", "2023-12-31", 2)

	s, failures := ComputeSchedule(
		[]VestEvent{vest("AAA", "2023-01-10", 10), vest("BBB", "2023-01-10", 10)},
		[]SellEvent{sell("AAA", "2023-02-01", 11, 10)},
		Config{Year: 2023}, market)

	if len(failures) != 1 {
		t.Fatalf("ComputeSchedule() failures = %v want 1", failures)
	}
	f := failures[0]
	if f.Symbol != "AAA" || f.Kind != InsufficientShares || f.Date != d("2023-02-01") {
		t.Errorf("Failure = %+v want AAA insufficient-shares on 2023-02-01", f)
	}
	var ise *InsufficientSharesError
	if !errors.As(f, &ise) {
		t.Errorf("errors.As(Failure, *InsufficientSharesError) = false want true")
	}
	if len(s.Rows) != 1 || s.Rows[0].Symbol != "BBB" || amount(s.Rows[0].PeakValue) != "400" {
		t.Errorf("ComputeSchedule() rows = %v want a single BBB row with peak 400", summarize(s.Rows))
	}
}

// The vest price override replaces the market close.
func TestComputeSchedule_VestOverride(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-31", 50).
		setRate("2023-01-01", "2023-12-31", 2)

	s := compute(t,
		[]VestEvent{vest("ACME", "2023-03-01", 10).WithOverride(decimal.NewFromInt(45))},
		[]SellEvent{sell("ACME", "2023-06-01", 4, 55)},
		Config{Year: 2023}, market)

	got := s.Rows[0]
	if amount(got.InitialValue) != "900" { // 10 × 45 × 2
		t.Errorf("InitialValue = %s want 900", amount(got.InitialValue))
	}
	if amount(got.AcquisitionCost) != "360" { // 4 × 45 × 2
		t.Errorf("AcquisitionCost = %s want 360", amount(got.AcquisitionCost))
	}
}

func TestComputeSchedule_ValidateOverride(t *testing.T) {
	market := highLowMarket{newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-31", 50).
		setRate("2023-01-01", "2023-12-31", 2)}
	market.setHighLow("ACME", "2023-03-01", 48, 52)

	vests := []VestEvent{vest("ACME", "2023-03-01", 10).WithOverride(decimal.NewFromInt(45))}

	_, failures := ComputeSchedule(vests, nil, Config{Year: 2023, ValidateOverrides: true}, market)
	if len(failures) != 1 || failures[0].Kind != InvalidEvent {
		t.Errorf("ComputeSchedule(ValidateOverrides) failures = %v want one invalid-event", failures)
	}

	// skipped validation
	_, failures = ComputeSchedule(vests, nil, Config{Year: 2023}, market)
	if len(failures) != 0 {
		t.Errorf("ComputeSchedule() failures = %v want none", failures)
	}

	// no range known, only a warning
	vests = []VestEvent{vest("ACME", "2023-04-03", 10).WithOverride(decimal.NewFromInt(45))}
	_, failures = ComputeSchedule(vests, nil, Config{Year: 2023, ValidateOverrides: true}, market)
	if len(failures) != 0 {
		t.Errorf("ComputeSchedule() without range failures = %v want none", failures)
	}
}

func TestComputeSchedule_MissingData(t *testing.T) {
	testCases := []struct {
		name     string
		market   *testMarket
		wantKind FailureKind
		wantDate string
	}{
		{
			name: "no vest price",
			market: newTestMarket().
				setPrice("ACME", "2023-03-02", "2023-12-31", 10).
				setRate("2023-01-01", "2023-12-31", 2),
			wantKind: MissingPrice,
			wantDate: "2023-03-01",
		},
		{
			name: "no rate on a held day",
			market: newTestMarket().
				setPrice("ACME", "2023-01-01", "2023-12-31", 10).
				setRate("2023-01-01", "2023-06-30", 2),
			wantKind: MissingRate,
			wantDate: "2023-07-01",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, failures := ComputeSchedule([]VestEvent{vest("ACME", "2023-03-01", 1)}, nil, Config{Year: 2023}, tc.market)
			if len(failures) != 1 {
				t.Fatalf("ComputeSchedule() failures = %v want 1", failures)
			}
			if f := failures[0]; f.Kind != tc.wantKind || f.Date != d(tc.wantDate) {
				t.Errorf("Failure = %s on %v want %s on %s", f.Kind, f.Date, tc.wantKind, tc.wantDate)
			}
		})
	}
}

// Rates are only needed on days where shares are held.
func TestComputeSchedule_RatesOnlyWhenHeld(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-31", 10).
		setRate("2023-09-01", "2023-12-31", 2)

	s := compute(t, []VestEvent{vest("ACME", "2023-09-01", 5)}, nil, Config{Year: 2023}, market)
	if got := s.Rows[0]; amount(got.PeakValue) != "100" || got.PeakDate != d("2023-09-01") {
		t.Errorf("Peak = %s on %v want 100 on 2023-09-01", amount(got.PeakValue), got.PeakDate)
	}
}

func TestComputeSchedule_SoldBeforeYear(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2022-01-01", "2023-12-31", 10).
		setRate("2022-01-01", "2023-12-31", 2)

	s := compute(t,
		[]VestEvent{vest("ACME", "2022-02-01", 5)},
		[]SellEvent{sell("ACME", "2022-06-01", 5, 12)},
		Config{Year: 2023}, market)

	got := s.Rows[0]
	if got.Held || !got.PeakDate.IsZero() || !got.PeakValue.IsZero() || !got.Proceeds.IsZero() {
		t.Errorf("ComputeSchedule() = %+v want a zero row", summarize(s.Rows))
	}
	if len(s.Held()) != 0 {
		t.Errorf("Schedule.Held() = %v want none", s.Held())
	}
}

func TestComputeSchedule_Grouping(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2022-01-01", "2023-12-31", 10).
		setRate("2022-01-01", "2023-12-31", 2)
	vests := []VestEvent{vest("ACME", "2022-06-01", 10), vest("ACME", "2023-03-01", 5)}
	sells := []SellEvent{sell("ACME", "2023-02-01", 4, 12)}

	testCases := []struct {
		grouping Grouping
		want     []row
	}{
		{BySymbol, []row{
			{Symbol: "ACME", AcquiredOn: "2022-06-01", Held: true, Initial: "300", Peak: "220", PeakDate: "2023-03-01", Closing: "220", Closed: "11", Proceeds: "96", Cost: "80"},
		}},
		{ByLot, []row{
			{Symbol: "ACME", AcquiredOn: "2022-06-01", Held: true, Initial: "200", Peak: "200", PeakDate: "2023-01-01", Closing: "120", Closed: "6", Proceeds: "96", Cost: "80"},
			{Symbol: "ACME", AcquiredOn: "2023-03-01", Held: true, Initial: "100", Peak: "100", PeakDate: "2023-03-01", Closing: "100", Closed: "5", Proceeds: "0", Cost: "0"},
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.grouping.String(), func(t *testing.T) {
			s := compute(t, vests, sells, Config{Year: 2023, Grouping: tc.grouping}, market)
			if diff := cmp.Diff(tc.want, summarize(s.Rows)); diff != "" {
				t.Errorf("ComputeSchedule() rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Peak is never below closing and ties resolve to the earliest day,
// identically across runs.
func TestComputeSchedule_PeakProperties(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-31", 10).
		setPrice("ACME", "2023-04-01", "2023-04-01", 30).
		setPrice("ACME", "2023-10-01", "2023-10-01", 20).
		setRate("2023-01-01", "2023-12-31", 1).
		setRate("2023-10-01", "2023-10-01", 3)
	// remove year end close: closing uses the last close of the year.
	delete(market.prices["ACME"], d("2023-12-30"))
	delete(market.prices["ACME"], d("2023-12-31"))

	vests := []VestEvent{
		vest("ACME", "2023-01-10", 2),
		vest("ACME", "2023-12-31", 100).WithOverride(decimal.NewFromInt(10)),
	}
	first := compute(t, vests, nil, Config{Year: 2023}, market)
	second := compute(t, vests, nil, Config{Year: 2023}, market)
	if diff := cmp.Diff(summarize(first.Rows), summarize(second.Rows)); diff != "" {
		t.Errorf("ComputeSchedule() is not deterministic (-first +second):\n%s", diff)
	}

	got := first.Rows[0]
	// Without the last vest the peak would be 2 × 20 × 3 on 10-01.
	// The vest on 12-31 is only seen by the closing value: 102 × 10 × 1 on 12-29.
	if got.ClosingDate != d("2023-12-29") || amount(got.ClosingValue) != "1020" {
		t.Errorf("Closing = %s on %v want 1020 on 2023-12-29", amount(got.ClosingValue), got.ClosingDate)
	}
	if got.PeakDate != d("2023-12-31") {
		t.Errorf("PeakDate = %v want 2023-12-31, the first day 102 shares are held", got.PeakDate)
	}
	if got.PeakValue.LessThan(got.ClosingValue) {
		t.Errorf("Peak %s < Closing %s", amount(got.PeakValue), amount(got.ClosingValue))
	}
}

// Shares vesting after the last close of the year are valued at that close,
// but the peak is dated when they are held.
func TestComputeSchedule_PeakAfterLastClose(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-29", 50).
		setRate("2023-01-01", "2023-12-31", 1)
	vests := []VestEvent{
		vest("ACME", "2023-01-10", 10),
		vest("ACME", "2023-12-31", 100).WithOverride(decimal.NewFromInt(50)),
	}
	got := compute(t, vests, nil, Config{Year: 2023}, market).Rows[0]

	if amount(got.PeakValue) != "5500" || got.PeakDate != d("2023-12-31") {
		t.Errorf("Peak = %s on %v want 5500 on 2023-12-31", amount(got.PeakValue), got.PeakDate)
	}
	if got.ClosingDate != d("2023-12-29") || amount(got.ClosingValue) != "5500" {
		t.Errorf("Closing = %s on %v want 5500 on 2023-12-29", amount(got.ClosingValue), got.ClosingDate)
	}

	// without a late vest the peak keeps the day of the close.
	got = compute(t, vests[:1], nil, Config{Year: 2023}, market).Rows[0]
	if amount(got.PeakValue) != "500" || got.PeakDate != d("2023-01-10") {
		t.Errorf("Peak = %s on %v want 500 on 2023-01-10", amount(got.PeakValue), got.PeakDate)
	}
}

// A vest on a day without a close is priced by the market's vest price, and
// that day is not a priced day of the year.
func TestComputeSchedule_WeekendVest(t *testing.T) {
	market := vestPriceMarket{
		testMarket: newTestMarket().
			setPrice("ACME", "2023-01-01", "2023-12-31", 10).
			setRate("2023-01-01", "2023-12-31", 1),
		vestPrices: map[date.Date]decimal.Decimal{d("2023-03-19"): decimal.NewFromInt(10)},
	}
	// 2023-03-18 and 19 have no close.
	delete(market.prices["ACME"], d("2023-03-18"))
	delete(market.prices["ACME"], d("2023-03-19"))
	market.setPrice("ACME", "2023-03-17", "2023-03-17", 12)
	market.setRate("2023-03-19", "2023-03-19", 5)

	vests := []VestEvent{vest("ACME", "2023-03-19", 10)}
	got := compute(t, vests, []SellEvent{sell("ACME", "2023-06-01", 10, 10)}, Config{Year: 2023}, market).Rows[0]

	// acquisition cost uses the rate of the vest day, peak ignores it.
	if amount(got.AcquisitionCost) != "500" {
		t.Errorf("AcquisitionCost = %s want 500", amount(got.AcquisitionCost))
	}
	if amount(got.PeakValue) != "100" || got.PeakDate != d("2023-03-20") {
		t.Errorf("Peak = %s on %v want 100 on 2023-03-20", amount(got.PeakValue), got.PeakDate)
	}

	// without a vest price, the vest cannot be priced.
	_, failures := ComputeSchedule(vests, nil, Config{Year: 2023}, market.testMarket)
	if len(failures) != 1 || failures[0].Kind != MissingPrice || failures[0].Date != d("2023-03-19") {
		t.Errorf("ComputeSchedule() failures = %v want a missing price on 2023-03-19", failures)
	}
}

func TestComputeSchedule_TieBreak(t *testing.T) {
	market := newTestMarket().
		setPrice("ACME", "2023-01-01", "2023-12-31", 10).
		setPrice("ACME", "2023-03-01", "2023-03-01", 20).
		setPrice("ACME", "2023-08-01", "2023-08-01", 20).
		setRate("2023-01-01", "2023-12-31", 1)

	s := compute(t, []VestEvent{vest("ACME", "2023-01-10", 2)}, nil, Config{Year: 2023}, market)
	if got := s.Rows[0]; got.PeakDate != d("2023-03-01") || amount(got.PeakValue) != "40" {
		t.Errorf("Peak = %s on %v want 40 on 2023-03-01", amount(got.PeakValue), got.PeakDate)
	}
}

func TestComputeSchedule_Company(t *testing.T) {
	market := companyMarket{
		testMarket: newTestMarket().
			setPrice("AAA", "2023-01-01", "2023-12-31", 1).
			setPrice("BBB", "2023-01-01", "2023-12-31", 1).
			setRate("2023-01-01", "2023-12-31", 1),
		companies: map[string]Company{"AAA": {Name: "Triple A Corp", Country: "Canada", CountryCode: 4}},
	}
	s := compute(t, []VestEvent{vest("AAA", "2023-01-10", 1), vest("BBB", "2023-01-10", 1)}, nil, Config{Year: 2023}, market)
	if got := s.Rows[0].Company; got.Name != "Triple A Corp" || got.CountryCode != 4 {
		t.Errorf("AAA company = %+v want Triple A Corp (4)", got)
	}
	if got, want := s.Rows[1].Company, DefaultCompany("BBB"); got != want {
		t.Errorf("BBB company = %+v want %+v", got, want)
	}
	if amount(s.Total.PeakValue) != "2" {
		t.Errorf("Total.PeakValue = %s want 2", amount(s.Total.PeakValue))
	}
}
