package forex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const cacheDuration = 5 * time.Minute

// Provider fetches the USD to KRW conversion rate and keeps the last
// good value for cacheDuration. On fetch failure it falls back to the
// cached value even when stale; a stale rate beats no rate.
type Provider struct {
	apiURL string
	client *http.Client
	log    *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	cached   decimal.Decimal
	cachedAt time.Time
	hasCache bool
}

func NewProvider(apiURL string, log *logrus.Logger) *Provider {
	return &Provider{
		apiURL: apiURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		now:    time.Now,
	}
}

type rateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// USDToKRW returns the current conversion rate and whether one is
// available at all.
func (p *Provider) USDToKRW(ctx context.Context) (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasCache && p.now().Sub(p.cachedAt) < cacheDuration {
		return p.cached, true
	}

	rate, err := p.fetch(ctx)
	if err != nil {
		p.log.Warnf("exchange rate fetch failed: %v", err)
		if p.hasCache {
			p.log.Infof("returning stale cached rate %s", p.cached)
			return p.cached, true
		}
		return decimal.Zero, false
	}

	p.cached = rate
	p.cachedAt = p.now()
	p.hasCache = true
	p.log.Infof("exchange rate updated: %s", rate)
	return rate, true
}

// HistoricalRate is not supported by the upstream free tier; it answers
// with the current rate and warns.
func (p *Provider) HistoricalRate(ctx context.Context, date time.Time) (decimal.Decimal, bool) {
	p.log.Warnf("historical rates not supported, returning current rate for %s", date.Format("2006-01-02"))
	return p.USDToKRW(ctx)
}

// ClearCache drops the cached value unconditionally.
func (p *Provider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = decimal.Zero
	p.cachedAt = time.Time{}
	p.hasCache = false
	p.log.Info("exchange rate cache cleared")
}

func (p *Provider) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var rr rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}
	krw, ok := rr.Rates["KRW"]
	if !ok || krw <= 0 {
		return decimal.Zero, fmt.Errorf("KRW rate missing from response")
	}
	return decimal.NewFromFloat(krw), nil
}
