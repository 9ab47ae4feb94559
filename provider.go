package foreignassets

import (
	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// Market provides the daily data required to value holdings.
//
// Implementations return an error wrapping ErrUnavailable when they have no value
// for a symbol or day.
type Market interface {
	// Price returns the close of symbol on day 'on', in the security currency.
	Price(symbol string, on date.Date) (decimal.Decimal, error)
	// Rate returns the price of one unit of the security currency in the home currency on day 'on'.
	Rate(on date.Date) (decimal.Decimal, error)
}

// HighLowMarket is implemented by markets that know the daily price range.
type HighLowMarket interface {
	HighLow(symbol string, on date.Date) (low, high decimal.Decimal, err error)
}

// VestPriceMarket is implemented by markets that can price a vest on a day
// without a close, from the latest earlier close.
type VestPriceMarket interface {
	VestPrice(symbol string, on date.Date) (decimal.Decimal, error)
}

// CompanyMarket is implemented by markets that know the issuer of a symbol.
type CompanyMarket interface {
	CompanyInfo(symbol string) (Company, error)
}

// Company describes the entity behind a symbol as reported in the schedule.
type Company struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	ZipCode     string `json:"zip_code"`
	Country     string `json:"country"`
	CountryCode int    `json:"-"`
	Nature      string `json:"nature"`
}

// DefaultCountry is the country assumed for companies with unknown metadata.
const DefaultCountry = "United States"

// DefaultCountryCode is the schedule code of the DefaultCountry, also used for unmapped countries.
const DefaultCountryCode = 2

// DefaultCompany returns the company record used when no metadata is available for symbol.
func DefaultCompany(symbol string) Company {
	return Company{
		Name:        symbol + " Inc.",
		Address:     "N/A",
		ZipCode:     "N/A",
		Country:     DefaultCountry,
		CountryCode: DefaultCountryCode,
		Nature:      "Public Company",
	}
}
