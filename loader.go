package foreignassets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// The input files are keyed by symbol:
//
//	{"MSFT": {"vests": [{"vest_date": "2023-03-15", "number_of_shares": 10, "vest_price_optional": 265.5}]}}
//	{"MSFT": {"sales": [{"sell_date": "2023-06-01", "number_of_shares_sold": 4, "sell_price": 330.1}]}}

type jsonVest struct {
	VestDate       date.Date    `json:"vest_date"`
	NumberOfShares Quantity     `json:"number_of_shares"`
	VestPrice      *json.Number `json:"vest_price_optional,omitempty"`
}

type jsonSale struct {
	SellDate           date.Date   `json:"sell_date"`
	NumberOfSharesSold Quantity    `json:"number_of_shares_sold"`
	SellPrice          json.Number `json:"sell_price"`
	// PurchaseDate is informative only, sales are matched first in first out.
	PurchaseDate *date.Date `json:"purchase_date,omitempty"`
}

type vestFile map[string]struct {
	Vests []jsonVest `json:"vests"`
}

type sellFile map[string]struct {
	Sales []jsonSale `json:"sales"`
}

func parseDecimal(n json.Number) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(n.String()))
}

// DecodeVests reads vests in the vest.json format.
//
// Vests of zero shares are dropped with a warning.
func DecodeVests(r io.Reader) ([]VestEvent, error) {
	var file vestFile
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("cannot decode vests: %w", err)
	}
	var vests []VestEvent
	for _, symbol := range sortedKeys(file) {
		for _, v := range file[symbol].Vests {
			if v.NumberOfShares.IsZero() {
				slog.Warn("ignoring vest of 0 shares", "symbol", symbol, "date", v.VestDate)
				continue
			}
			e := VestEvent{Symbol: symbol, Date: v.VestDate, Quantity: v.NumberOfShares}
			if v.VestPrice != nil {
				price, err := parseDecimal(*v.VestPrice)
				if err != nil {
					return nil, fmt.Errorf("invalid vest price for %s on %s: %w", symbol, v.VestDate, err)
				}
				e = e.WithOverride(price)
			}
			vests = append(vests, e)
		}
	}
	return vests, nil
}

// DecodeSells reads sales in the sell.json format.
//
// Sales of zero shares are dropped with a warning.
func DecodeSells(r io.Reader) ([]SellEvent, error) {
	var file sellFile
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("cannot decode sales: %w", err)
	}
	var sells []SellEvent
	for _, symbol := range sortedKeys(file) {
		for _, s := range file[symbol].Sales {
			if s.NumberOfSharesSold.IsZero() {
				slog.Warn("ignoring sale of 0 shares", "symbol", symbol, "date", s.SellDate)
				continue
			}
			price, err := parseDecimal(s.SellPrice)
			if err != nil {
				return nil, fmt.Errorf("invalid sell price for %s on %s: %w", symbol, s.SellDate, err)
			}
			e := SellEvent{Symbol: symbol, Date: s.SellDate, Quantity: s.NumberOfSharesSold, UnitPrice: price}
			if s.PurchaseDate != nil {
				e.PurchaseDate = *s.PurchaseDate
			}
			sells = append(sells, e)
		}
	}
	return sells, nil
}

// EncodeVests writes vests in the vest.json format, sorted by symbol then date.
func EncodeVests(w io.Writer, vests []VestEvent) error {
	file := make(map[string]map[string][]jsonVest)
	for _, symbol := range symbols(vests, nil) {
		var list []jsonVest
		for _, e := range sortedVests(vests, symbol) {
			v := jsonVest{VestDate: e.Date, NumberOfShares: e.Quantity}
			if e.Override != nil {
				n := json.Number(e.Override.String())
				v.VestPrice = &n
			}
			list = append(list, v)
		}
		file[symbol] = map[string][]jsonVest{"vests": list}
	}
	return encodeIndent(w, file)
}

// EncodeSells writes sales in the sell.json format, sorted by symbol then date.
func EncodeSells(w io.Writer, sells []SellEvent) error {
	file := make(map[string]map[string][]jsonSale)
	for _, symbol := range symbols(nil, sells) {
		var list []jsonSale
		for _, e := range sortedSells(sells, symbol) {
			s := jsonSale{SellDate: e.Date, NumberOfSharesSold: e.Quantity, SellPrice: json.Number(e.UnitPrice.String())}
			if !e.PurchaseDate.IsZero() {
				on := e.PurchaseDate
				s.PurchaseDate = &on
			}
			list = append(list, s)
		}
		file[symbol] = map[string][]jsonSale{"sales": list}
	}
	return encodeIndent(w, file)
}

func encodeIndent(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LoadVests reads the vest file at path.
func LoadVests(path string) ([]VestEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read vest file %q: %w", path, err)
	}
	vests, err := DecodeVests(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not load vest file %q: %w", path, err)
	}
	return vests, nil
}

// LoadSells reads the sell file at path.
func LoadSells(path string) ([]SellEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read sell file %q: %w", path, err)
	}
	sells, err := DecodeSells(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not load sell file %q: %w", path, err)
	}
	return sells, nil
}
