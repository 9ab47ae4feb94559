package renderer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/etnz/foreignassets"
)

// faHeader are the columns of the foreign assets schedule, section A3 of the ITR.
var faHeader = []string{
	"Country/Region name",
	"Country Name and Code",
	"Name of entity",
	"Address of entity",
	"ZIP Code",
	"Nature of entity",
	"Date of acquiring the interest",
	"Initial value of the investment",
	"Peak value of investment during the Period",
	"Closing balance",
	"Total gross amount paid/credited with respect to the holding during the period",
	"Total gross proceeds from sale or redemption of investment during the period",
}

// WriteFA writes the held rows of s in the FA.csv layout.
//
// The header is always quoted, the rows are only quoted when a field requires it.
// The first column is the serial number of the row and the second one the
// numeric code of the company's country. Dividends are not tracked and the
// gross amount paid is always 0.
func WriteFA(w io.Writer, s *foreignassets.Schedule, opts Options) error {
	quoted := make([]string, len(faHeader))
	for i, col := range faHeader {
		quoted[i] = strconv.Quote(col)
	}
	if _, err := fmt.Fprintln(w, strings.Join(quoted, ",")); err != nil {
		return err
	}

	amount := func(m foreignassets.Money) string {
		if opts.Whole {
			return m.RoundWhole().Decimal().StringFixed(0)
		}
		return m.Round().Amount()
	}

	cw := csv.NewWriter(w)
	for i, row := range s.Held() {
		c := row.Company
		record := []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.CountryCode),
			c.Name,
			c.Address,
			c.ZipCode,
			c.Nature,
			row.AcquiredOn.String(),
			amount(row.InitialValue),
			amount(row.PeakValue),
			amount(row.ClosingValue),
			"0",
			amount(row.Proceeds),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
