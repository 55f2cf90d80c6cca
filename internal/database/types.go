package database

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	ID        int64     `db:"id" json:"-"`
	Ticker    string    `db:"ticker" json:"ticker"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Transaction struct {
	ID              int64           `db:"id" json:"id"`
	Ticker          string          `db:"ticker" json:"ticker"`
	Type            string          `db:"type" json:"type"`
	Shares          decimal.Decimal `db:"shares" json:"shares"`
	PriceUSD        decimal.Decimal `db:"price_usd" json:"price_usd"`
	ExchangeRate    decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	TransactionTime time.Time       `db:"transaction_time" json:"transaction_time"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type Alert struct {
	ID            int64           `db:"id" json:"id"`
	Ticker        string          `db:"ticker" json:"ticker"`
	ChangePercent decimal.Decimal `db:"change_percent" json:"change_percent"`
	Price         decimal.Decimal `db:"price" json:"price"`
	SentAt        time.Time       `db:"sent_at" json:"sent_at"`
}

const (
	TransactionBuy  = "BUY"
	TransactionSell = "SELL"
)
