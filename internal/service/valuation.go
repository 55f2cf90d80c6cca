package service

import (
	"context"
	"sort"

	"folio/internal/database"
	"folio/internal/market"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store is the slice of the repository the services read from.
type Store interface {
	ListHoldings(ctx context.Context) ([]database.Holding, error)
	GetHolding(ctx context.Context, ticker string) (*database.Holding, error)
	TransactionsForTicker(ctx context.Context, ticker string) ([]database.Transaction, error)
}

// MarketData provides per-symbol quotes; nil values signal absence.
type MarketData interface {
	GetQuote(ctx context.Context, ticker string) market.Quote
	CurrentPrice(ctx context.Context, ticker string) *decimal.Decimal
	PreviousClose(ctx context.Context, ticker string) *decimal.Decimal
}

// RateSource provides the USD to KRW conversion rate.
type RateSource interface {
	USDToKRW(ctx context.Context) (decimal.Decimal, bool)
}

type HoldingSnapshot struct {
	Ticker         string           `json:"ticker"`
	Name           string           `json:"name"`
	Shares         decimal.Decimal  `json:"shares"`
	AvgPrice       decimal.Decimal  `json:"avg_price"`
	CurrentPrice   *decimal.Decimal `json:"current_price"`
	ValueKRW       *decimal.Decimal `json:"value_krw"`
	ProfitPct      *decimal.Decimal `json:"profit_pct"`
	DailyChangePct *decimal.Decimal `json:"daily_change_pct"`
}

type TransactionView struct {
	database.Transaction
	TotalKRW decimal.Decimal `json:"total_krw"`
}

type HoldingDetail struct {
	Ticker         string            `json:"ticker"`
	Name           string            `json:"name"`
	CurrentPrice   *decimal.Decimal  `json:"current_price"`
	DailyChangePct *decimal.Decimal  `json:"daily_change_pct"`
	TotalShares    decimal.Decimal   `json:"total_shares"`
	AvgPrice       decimal.Decimal   `json:"avg_price"`
	ValueKRW       *decimal.Decimal  `json:"value_krw"`
	ProfitPct      *decimal.Decimal  `json:"profit_pct"`
	ProfitKRW      *decimal.Decimal  `json:"profit_krw"`
	Transactions   []TransactionView `json:"transactions"`
}

type PortfolioSummary struct {
	TotalValueKRW  decimal.Decimal `json:"total_value_krw"`
	TotalCostKRW   decimal.Decimal `json:"total_cost_krw"`
	TotalProfitKRW decimal.Decimal `json:"total_profit_krw"`
	TotalProfitPct decimal.Decimal `json:"total_profit_pct"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	HoldingsCount  int             `json:"holdings_count"`
}

// Valuation combines stored rows with live market data and the exchange
// rate. External data being unavailable degrades fields to null, never
// fails a request.
type Valuation struct {
	store  Store
	market MarketData
	rates  RateSource
	log    *logrus.Logger
}

func NewValuation(store Store, md MarketData, rates RateSource, log *logrus.Logger) *Valuation {
	return &Valuation{store: store, market: md, rates: rates, log: log}
}

// NetShares is BUY total minus SELL total across the ticker's history.
func NetShares(txs []database.Transaction) decimal.Decimal {
	net := decimal.Zero
	for _, t := range txs {
		if t.Type == database.TransactionBuy {
			net = net.Add(t.Shares)
		} else {
			net = net.Sub(t.Shares)
		}
	}
	return net
}

// AverageCost is the buy-only running average; SELLs do not deplete the
// basis in this model.
func AverageCost(txs []database.Transaction) decimal.Decimal {
	cost := decimal.Zero
	shares := decimal.Zero
	for _, t := range txs {
		if t.Type != database.TransactionBuy {
			continue
		}
		cost = cost.Add(t.Shares.Mul(t.PriceUSD))
		shares = shares.Add(t.Shares)
	}
	if shares.IsZero() {
		return decimal.Zero
	}
	return cost.Div(shares)
}

// buyCostKRW is the KRW cost basis using the rate captured on each BUY.
func buyCostKRW(txs []database.Transaction) decimal.Decimal {
	cost := decimal.Zero
	for _, t := range txs {
		if t.Type == database.TransactionBuy {
			cost = cost.Add(t.Shares.Mul(t.PriceUSD).Mul(t.ExchangeRate))
		}
	}
	return cost
}

// HoldingSnapshots lists currently held tickers (net shares > 0) with
// live valuation, sorted by profit percent descending with unknowns last.
func (v *Valuation) HoldingSnapshots(ctx context.Context) ([]HoldingSnapshot, error) {
	holdings, err := v.store.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}
	rate, rateOK := v.rates.USDToKRW(ctx)

	res := []HoldingSnapshot{}
	for _, h := range holdings {
		txs, err := v.store.TransactionsForTicker(ctx, h.Ticker)
		if err != nil {
			v.log.Warnf("list transactions for %s failed: %v", h.Ticker, err)
			continue
		}
		net := NetShares(txs)
		if !net.IsPositive() {
			continue
		}
		avg := AverageCost(txs)
		if avg.IsZero() {
			continue
		}

		quote := v.market.GetQuote(ctx, h.Ticker)
		snap := HoldingSnapshot{
			Ticker:         h.Ticker,
			Name:           displayName(h.Name, h.Ticker),
			Shares:         net,
			AvgPrice:       avg,
			CurrentPrice:   quote.CurrentPrice,
			DailyChangePct: quote.DailyChangePct,
		}
		if quote.CurrentPrice != nil && rateOK {
			value := net.Mul(*quote.CurrentPrice).Mul(rate)
			snap.ValueKRW = &value
			profit := quote.CurrentPrice.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100))
			snap.ProfitPct = &profit
		}
		res = append(res, snap)
	}

	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i].ProfitPct, res[j].ProfitPct
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.GreaterThan(*b)
	})
	return res, nil
}

// HoldingDetail returns nil when the ticker is unknown. Unlike the
// listing it does not exclude fully sold-off positions.
func (v *Valuation) HoldingDetail(ctx context.Context, ticker string) (*HoldingDetail, error) {
	h, err := v.store.GetHolding(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	txs, err := v.store.TransactionsForTicker(ctx, h.Ticker)
	if err != nil {
		return nil, err
	}

	net := NetShares(txs)
	avg := AverageCost(txs)
	quote := v.market.GetQuote(ctx, h.Ticker)
	rate, rateOK := v.rates.USDToKRW(ctx)

	detail := &HoldingDetail{
		Ticker:         h.Ticker,
		Name:           displayName(h.Name, h.Ticker),
		CurrentPrice:   quote.CurrentPrice,
		DailyChangePct: quote.DailyChangePct,
		TotalShares:    net,
		AvgPrice:       avg,
		Transactions:   transactionViews(txs),
	}

	if quote.CurrentPrice != nil && rateOK {
		value := net.Mul(*quote.CurrentPrice).Mul(rate)
		detail.ValueKRW = &value
		cost := buyCostKRW(txs)
		profit := value.Sub(cost)
		detail.ProfitKRW = &profit
		if cost.IsPositive() {
			pct := profit.Div(cost).Mul(decimal.NewFromInt(100))
			detail.ProfitPct = &pct
		} else {
			zero := decimal.Zero
			detail.ProfitPct = &zero
		}
	}
	return detail, nil
}

// Summary aggregates the whole portfolio. A totally unavailable rate is
// treated as zero with a warning rather than aborting.
func (v *Valuation) Summary(ctx context.Context) (*PortfolioSummary, error) {
	holdings, err := v.store.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}

	rate, rateOK := v.rates.USDToKRW(ctx)
	if !rateOK {
		v.log.Warn("exchange rate unavailable, valuing portfolio with rate 0")
		rate = decimal.Zero
	}

	totalValue := decimal.Zero
	totalCost := decimal.Zero
	count := 0
	for _, h := range holdings {
		txs, err := v.store.TransactionsForTicker(ctx, h.Ticker)
		if err != nil {
			v.log.Warnf("list transactions for %s failed: %v", h.Ticker, err)
			continue
		}
		net := NetShares(txs)
		if !net.IsPositive() {
			continue
		}
		count++
		totalCost = totalCost.Add(buyCostKRW(txs))

		price := v.market.CurrentPrice(ctx, h.Ticker)
		if price != nil && rateOK {
			totalValue = totalValue.Add(net.Mul(*price).Mul(rate))
		}
	}

	profit := totalValue.Sub(totalCost)
	profitPct := decimal.Zero
	if totalCost.IsPositive() {
		profitPct = profit.Div(totalCost).Mul(decimal.NewFromInt(100))
	}
	return &PortfolioSummary{
		TotalValueKRW:  totalValue,
		TotalCostKRW:   totalCost,
		TotalProfitKRW: profit,
		TotalProfitPct: profitPct,
		ExchangeRate:   rate,
		HoldingsCount:  count,
	}, nil
}

// TransactionViews attaches the derived KRW total to each row.
func TransactionViews(txs []database.Transaction) []TransactionView {
	return transactionViews(txs)
}

func transactionViews(txs []database.Transaction) []TransactionView {
	res := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		res = append(res, TransactionView{
			Transaction: t,
			TotalKRW:    t.Shares.Mul(t.PriceUSD).Mul(t.ExchangeRate),
		})
	}
	return res
}

func displayName(name, ticker string) string {
	if name == "" {
		return ticker
	}
	return name
}
