// Package sbi provides the State Bank of India TT sell reference rates of the US Dollar.
package sbi

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// DefaultURL is the community maintained archive of the daily reference rates.
const DefaultURL = "https://raw.githubusercontent.com/sahilgupta/sbi-fx-ratekeeper/main/csv_files/SBI_REFERENCE_RATES_USD.csv"

// WalkBack is the number of previous days searched for a rate on days without publication.
const WalkBack = 10

// ttSell is the column of the TT sell rate.
const ttSell = 3

// Client downloads the rate archive once and answers from memory.
type Client struct {
	URL string

	client *http.Client
	mu     sync.Mutex // serializes downloads
	memo   *cache.Cache
}

// New returns a Client of the DefaultURL.
func New() *Client {
	return &Client{
		URL:    DefaultURL,
		client: &http.Client{Timeout: 30 * time.Second},
		memo:   cache.New(time.Hour, 2*time.Hour),
	}
}

// Rates returns the history of the TT sell rates.
func (c *Client) Rates(ctx context.Context) (*date.History[decimal.Decimal], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.memo.Get(c.URL); ok {
		return h.(*date.History[decimal.Decimal]), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot download reference rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}
	h, err := Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot parse reference rates: %w", err)
	}
	from, _ := h.Earliest()
	to, _ := h.Latest()
	slog.Info("reference rates downloaded", "url", c.URL, "from", from, "to", to, "count", h.Len())
	c.memo.SetDefault(c.URL, h)
	return h, nil
}

// Rate returns the rate published on day 'on', or the latest published in the
// WalkBack previous days.
func (c *Client) Rate(ctx context.Context, on date.Date) (decimal.Decimal, error) {
	h, err := c.Rates(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return AsOf(h, on)
}

// AsOf returns the rate of h on day 'on', or the latest of the WalkBack previous days.
func AsOf(h *date.History[decimal.Decimal], on date.Date) (decimal.Decimal, error) {
	day, rate, ok := h.PointAsOf(on)
	if !ok || day.Before(on.Add(-WalkBack)) {
		return decimal.Decimal{}, fmt.Errorf("no reference rate on %s or the %d days before: %w", on, WalkBack, foreignassets.ErrUnavailable)
	}
	if day != on {
		slog.Debug("using an earlier reference rate", "date", on, "rate_date", day, "rate", rate)
	}
	return rate, nil
}

// Parse reads the rate archive.
//
// Each line starts with a date time "2006-01-02 15:04", the TT sell rate is the
// fourth column. Lines without a positive rate are skipped, the first line of a
// day wins.
func Parse(r io.Reader) (*date.History[decimal.Decimal], error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h := new(date.History[decimal.Decimal])
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) <= ttSell || strings.HasPrefix(record[0], "DATE") || len(record[0]) < 10 {
			continue
		}
		day, err := date.Parse(record[0][:10])
		if err != nil {
			slog.Debug("skipping reference rate", "line", line, "err", err)
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(record[ttSell]))
		if err != nil || !rate.IsPositive() {
			continue
		}
		if _, exists := h.Get(day); exists {
			continue
		}
		h.Append(day, rate)
	}
	return h, nil
}
