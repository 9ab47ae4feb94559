// Package yahoo fetches daily quotes and company profiles from Yahoo Finance.
package yahoo

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
	"github.com/etnz/foreignassets/market"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client is a Yahoo Finance client.
//
// Responses are cached on disk for the day and requests are rate limited.
type Client struct {
	// Host is the base address of the API.
	Host string
	// CookieURL is a page setting the session cookie required to get a crumb.
	CookieURL string

	client  *http.Client // api calls
	session *http.Client // crumb calls, never cached
	crumbs  *cache.Cache
}

// New returns a Client caching responses in the temporary directory and
// sending at most two requests per second.
func New() *Client {
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	base := &limited{base: http.DefaultTransport, limiter: limiter}
	return newClient(&http.Client{Transport: &diskCache{base: base}, Timeout: 30 * time.Second}, base)
}

// newClient returns a Client using client for api calls and transport for crumb calls.
func newClient(client *http.Client, transport http.RoundTripper) *Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails.
		panic(err)
	}
	client.Jar = jar
	return &Client{
		Host:      "https://query2.finance.yahoo.com",
		CookieURL: "https://fc.yahoo.com",
		client:    client,
		session:   &http.Client{Transport: transport, Jar: jar, Timeout: client.Timeout},
		crumbs:    cache.New(time.Hour, 2*time.Hour),
	}
}

// get performs a GET on addr and decodes its JSON body.
//
// A 404 response is reported as foreignassets.ErrUnavailable.
func get(ctx context.Context, client *http.Client, addr string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("cannot http GET %v%v: %v: %w", req.URL.Host, req.URL.Path, resp.Status, foreignassets.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, &statusError{status: resp.StatusCode, msg: fmt.Sprintf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)}
	}
	var jobj any
	if err := json.NewDecoder(resp.Body).Decode(&jobj); err != nil {
		return nil, fmt.Errorf("cannot decode %v%v: %w", req.URL.Host, req.URL.Path, err)
	}
	return jobj, nil
}

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

// lookup returns the value at path in jobj, nil when absent.
func lookup(jobj any, path string) any {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil
	}
	return jval
}

func lookupString(jobj any, path string) string {
	s, _ := lookup(jobj, path).(string)
	return s
}

func lookupList(jobj any, path string) []any {
	l, _ := lookup(jobj, path).([]any)
	return l
}

// chartError returns the error reported in a chart payload, nil when none.
func chartError(jobj any) error {
	desc := lookupString(jobj, "$.chart.error.description")
	if desc == "" {
		return nil
	}
	code := lookupString(jobj, "$.chart.error.code")
	if code == "Not Found" {
		return fmt.Errorf("%s: %w", desc, foreignassets.ErrUnavailable)
	}
	return errors.New(desc)
}

// Quotes returns the daily quotes of symbol over r, rounded to the cent.
func (c *Client) Quotes(ctx context.Context, symbol string, r date.Range) ([]market.Quote, error) {
	// https://query2.finance.yahoo.com/v8/finance/chart/MSFT?period1=1678838400&period2=1678924800&interval=1d
	// {"chart": {"result": [{
	//     "meta": {"currency": "USD", "symbol": "MSFT", "exchangeTimezoneName": "America/New_York", "gmtoffset": -14400, ...},
	//     "timestamp": [1678887000],
	//     "indicators": {"quote": [{"close": [265.44000244140625], "high": [266.4800109863281], "low": [259.2099914550781], ...}]}
	// }], "error": null}}
	q := url.Values{}
	q.Set("period1", fmt.Sprint(r.From.Unix()))
	q.Set("period2", fmt.Sprint(r.To.Add(1).Unix()))
	q.Set("interval", "1d")
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.Host, url.PathEscape(symbol), q.Encode())

	jobj, err := get(ctx, c.client, addr)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch quotes of %s: %w", symbol, err)
	}
	if err := chartError(jobj); err != nil {
		return nil, fmt.Errorf("cannot fetch quotes of %s: %w", symbol, err)
	}
	quotes, err := parseChart(jobj)
	if err != nil {
		return nil, fmt.Errorf("cannot parse quotes of %s: %w", symbol, err)
	}
	result := quotes[:0]
	for _, q := range quotes {
		if r.Contains(q.Date) {
			result = append(result, q)
		}
	}
	return result, nil
}

// parseChart extracts the quotes of a chart payload. Days without a close are skipped.
func parseChart(jobj any) ([]market.Quote, error) {
	loc := exchangeLocation(jobj)
	timestamps := lookupList(jobj, "$.chart.result[0].timestamp")
	closes := lookupList(jobj, "$.chart.result[0].indicators.quote[0].close")
	lows := lookupList(jobj, "$.chart.result[0].indicators.quote[0].low")
	highs := lookupList(jobj, "$.chart.result[0].indicators.quote[0].high")
	if len(closes) < len(timestamps) {
		return nil, fmt.Errorf("%d closes for %d days", len(closes), len(timestamps))
	}

	quotes := make([]market.Quote, 0, len(timestamps))
	for i, ts := range timestamps {
		sec, ok := ts.(float64)
		if !ok {
			return nil, fmt.Errorf("invalid timestamp %v", ts)
		}
		cl, ok := cents(closes, i)
		if !ok {
			continue
		}
		low, _ := cents(lows, i)
		high, _ := cents(highs, i)
		quotes = append(quotes, market.Quote{
			Date:  date.Of(time.Unix(int64(sec), 0).In(loc)),
			Close: cl,
			Low:   low,
			High:  high,
		})
	}
	return quotes, nil
}

// cents returns values[i] rounded to two decimals.
func cents(values []any, i int) (decimal.Decimal, bool) {
	if i >= len(values) {
		return decimal.Decimal{}, false
	}
	v, ok := values[i].(float64)
	if !ok {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(v).Round(2), true
}

// exchangeLocation returns the time zone of the exchange of a chart payload.
func exchangeLocation(jobj any) *time.Location {
	if name := lookupString(jobj, "$.chart.result[0].meta.exchangeTimezoneName"); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if offset, ok := lookup(jobj, "$.chart.result[0].meta.gmtoffset").(float64); ok {
		return time.FixedZone("exchange", int(offset))
	}
	return time.UTC
}

// crumb returns the token authorizing quoteSummary calls for the session.
func (c *Client) crumb(ctx context.Context) (string, error) {
	if v, ok := c.crumbs.Get("crumb"); ok {
		return v.(string), nil
	}

	// the cookie page answers 404 but sets the session cookie.
	if req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CookieURL, nil); err == nil {
		req.Header.Set("User-Agent", userAgent)
		if resp, err := c.session.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.session.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot get crumb: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cannot read crumb: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK || crumb == "" {
		return "", fmt.Errorf("cannot get crumb: %v", resp.Status)
	}
	slog.Debug("yahoo session initialized")
	c.crumbs.SetDefault("crumb", crumb)
	return crumb, nil
}

// Profile returns the company behind symbol.
func (c *Client) Profile(ctx context.Context, symbol string) (foreignassets.Company, error) {
	jobj, err := c.quoteSummary(ctx, symbol)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusUnauthorized {
		// stale crumb, start a new session once.
		c.crumbs.Delete("crumb")
		jobj, err = c.quoteSummary(ctx, symbol)
	}
	if err != nil {
		return foreignassets.Company{}, fmt.Errorf("cannot fetch profile of %s: %w", symbol, err)
	}
	return parseProfile(symbol, jobj)
}

func (c *Client) quoteSummary(ctx context.Context, symbol string) (any, error) {
	// https://query2.finance.yahoo.com/v10/finance/quoteSummary/MSFT?modules=assetProfile,price&crumb=...
	// {"quoteSummary": {"result": [{
	//     "assetProfile": {"address1": "One Microsoft Way", "city": "Redmond", "state": "WA", "zip": "98052-6399", "country": "United States", "sector": "Technology", ...},
	//     "price": {"longName": "Microsoft Corporation", "shortName": "Microsoft Corporation", ...}
	// }], "error": null}}
	crumb, err := c.crumb(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("modules", "assetProfile,price")
	q.Set("crumb", crumb)
	addr := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", c.Host, url.PathEscape(symbol), q.Encode())
	return get(ctx, c.client, addr)
}

// parseProfile extracts the company of a quoteSummary payload.
func parseProfile(symbol string, jobj any) (foreignassets.Company, error) {
	const profile = "$.quoteSummary.result[0].assetProfile"
	if _, ok := lookup(jobj, profile).(map[string]any); !ok {
		return foreignassets.Company{}, fmt.Errorf("no profile for %s: %w", symbol, foreignassets.ErrUnavailable)
	}
	def := foreignassets.DefaultCompany(symbol)

	var address []string
	for _, field := range []string{"address1", "city", "state"} {
		if s := lookupString(jobj, profile+"."+field); s != "" {
			address = append(address, s)
		}
	}
	return foreignassets.Company{
		Name: cmp.Or(
			lookupString(jobj, "$.quoteSummary.result[0].price.longName"),
			lookupString(jobj, "$.quoteSummary.result[0].price.shortName"),
			def.Name),
		Address: cmp.Or(strings.Join(address, " "), def.Address),
		ZipCode: cmp.Or(lookupString(jobj, profile+".zip"), def.ZipCode),
		Country: cmp.Or(lookupString(jobj, profile+".country"), def.Country),
		Nature:  cmp.Or(lookupString(jobj, profile+".sector"), "Public Limited Company"),
	}, nil
}
