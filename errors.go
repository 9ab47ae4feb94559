package foreignassets

import (
	"errors"
	"fmt"

	"github.com/etnz/foreignassets/date"
)

// ErrUnavailable is returned by market data providers when they have no value for
// the requested symbol and date.
var ErrUnavailable = errors.New("not available")

// InsufficientSharesError is returned when a sale requests more shares than
// were vested and still held on the sale date.
type InsufficientSharesError struct {
	Symbol    string
	Date      date.Date
	Requested Quantity
	Available Quantity
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s on %s: selling %s, only %s available", e.Symbol, e.Date, e.Requested, e.Available)
}

// MissingPriceError is returned when a market close is required for a date
// and the market cannot provide it.
type MissingPriceError struct {
	Symbol string
	Date   date.Date
	Err    error
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing price of %s on %s: %v", e.Symbol, e.Date, e.Err)
}

func (e *MissingPriceError) Unwrap() error { return e.Err }

// MissingRateError is returned when an exchange rate is required for a date
// and the market cannot provide it.
type MissingRateError struct {
	Date date.Date
	Err  error
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("missing exchange rate on %s: %v", e.Date, e.Err)
}

func (e *MissingRateError) Unwrap() error { return e.Err }

// InvalidEventError is returned for malformed or out of order vest and sale events.
type InvalidEventError struct {
	Symbol string
	Date   date.Date
	Reason string
}

func (e *InvalidEventError) Error() string {
	switch {
	case e.Symbol == "":
		return fmt.Sprintf("invalid event on %s: %s", e.Date, e.Reason)
	case e.Date.IsZero():
		return fmt.Sprintf("invalid event for %s: %s", e.Symbol, e.Reason)
	default:
		return fmt.Sprintf("invalid event for %s on %s: %s", e.Symbol, e.Date, e.Reason)
	}
}

// FailureKind classifies the error that prevented a holding from being valued.
type FailureKind string

const (
	InsufficientShares FailureKind = "insufficient-shares"
	MissingPrice       FailureKind = "missing-price"
	MissingRate        FailureKind = "missing-rate"
	InvalidEvent       FailureKind = "invalid-event"
	Other              FailureKind = "other"
)

// Failure records why a symbol could not be valued.
type Failure struct {
	Symbol string
	Kind   FailureKind
	Date   date.Date // offending date, zero when unknown
	Err    error
}

// newFailure classifies err for symbol.
func newFailure(symbol string, err error) Failure {
	f := Failure{Symbol: symbol, Kind: Other, Err: err}
	var (
		ise *InsufficientSharesError
		mpe *MissingPriceError
		mre *MissingRateError
		iee *InvalidEventError
	)
	switch {
	case errors.As(err, &ise):
		f.Kind, f.Date = InsufficientShares, ise.Date
	case errors.As(err, &mpe):
		f.Kind, f.Date = MissingPrice, mpe.Date
	case errors.As(err, &mre):
		f.Kind, f.Date = MissingRate, mre.Date
	case errors.As(err, &iee):
		f.Kind, f.Date = InvalidEvent, iee.Date
	}
	return f
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Symbol, f.Err) }

func (f Failure) Unwrap() error { return f.Err }
