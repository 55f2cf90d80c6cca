package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Quote bundles everything the upstream source knows about one symbol.
// Nil fields mean the source had no value; callers degrade instead of
// failing.
type Quote struct {
	Ticker         string
	Name           string
	CurrentPrice   *decimal.Decimal
	PreviousClose  *decimal.Decimal
	DailyChangePct *decimal.Decimal
	Currency       string
}

// Client fetches quotes from a Yahoo-style quote API. No caching.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

func NewClient(baseURL string, log *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type quoteResult struct {
	Symbol                     string   `json:"symbol"`
	LongName                   string   `json:"longName"`
	ShortName                  string   `json:"shortName"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	Currency                   string   `json:"currency"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  interface{}   `json:"error"`
	} `json:"quoteResponse"`
}

// GetQuote never fails: on any upstream problem it returns a Quote with
// the name defaulted to the ticker and every price field nil.
func (c *Client) GetQuote(ctx context.Context, ticker string) Quote {
	q := Quote{Ticker: ticker, Name: ticker, Currency: "USD"}

	res, err := c.fetch(ctx, ticker)
	if err != nil {
		c.log.Warnf("quote fetch failed for %s: %v", ticker, err)
		return q
	}

	if res.LongName != "" {
		q.Name = res.LongName
	} else if res.ShortName != "" {
		q.Name = res.ShortName
	}
	if res.Currency != "" {
		q.Currency = res.Currency
	}
	q.CurrentPrice = toDecimal(res.RegularMarketPrice)
	q.PreviousClose = toDecimal(res.RegularMarketPreviousClose)
	if res.RegularMarketChangePercent != nil {
		q.DailyChangePct = toDecimal(res.RegularMarketChangePercent)
	} else if q.CurrentPrice != nil && q.PreviousClose != nil {
		pct := ChangePercent(*q.CurrentPrice, *q.PreviousClose)
		q.DailyChangePct = &pct
	}
	return q
}

// CurrentPrice returns nil when the price cannot be determined.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) *decimal.Decimal {
	res, err := c.fetch(ctx, ticker)
	if err != nil {
		c.log.Warnf("current price fetch failed for %s: %v", ticker, err)
		return nil
	}
	return toDecimal(res.RegularMarketPrice)
}

// PreviousClose returns nil when the previous close cannot be determined.
func (c *Client) PreviousClose(ctx context.Context, ticker string) *decimal.Decimal {
	res, err := c.fetch(ctx, ticker)
	if err != nil {
		c.log.Warnf("previous close fetch failed for %s: %v", ticker, err)
		return nil
	}
	return toDecimal(res.RegularMarketPreviousClose)
}

func (c *Client) fetch(ctx context.Context, ticker string) (*quoteResult, error) {
	u := fmt.Sprintf("%s?symbols=%s", c.baseURL, url.QueryEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	if len(qr.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data for %s", ticker)
	}
	return &qr.QuoteResponse.Result[0], nil
}

// ChangePercent computes (current-previous)/previous*100, returning 0
// when the baseline is 0.
func ChangePercent(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
}

func toDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
