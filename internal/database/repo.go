package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// NormalizeTicker is the single case rule for ticker symbols; every write
// and lookup goes through it.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetHolding returns nil without error when the ticker is unknown.
func (r *Repo) GetHolding(ctx context.Context, ticker string) (*Holding, error) {
	var h Holding
	err := r.db.GetContext(ctx, &h, `SELECT id, ticker, name, created_at FROM holdings WHERE ticker = $1`, NormalizeTicker(ticker))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repo) CreateHolding(ctx context.Context, ticker, name string) (*Holding, error) {
	var h Holding
	q := `INSERT INTO holdings (ticker, name) VALUES ($1, $2)
	      ON CONFLICT (ticker) DO UPDATE SET ticker = EXCLUDED.ticker
	      RETURNING id, ticker, name, created_at`
	if err := r.db.GetContext(ctx, &h, q, NormalizeTicker(ticker), name); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repo) ListHoldings(ctx context.Context) ([]Holding, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, ticker, name, created_at FROM holdings ORDER BY ticker ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Holding{}
	for rows.Next() {
		var h Holding
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// DeleteHolding removes the holding and, via the schema's cascade, all of
// its transactions. Returns false when the ticker does not exist.
func (r *Repo) DeleteHolding(ctx context.Context, ticker string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holdings WHERE ticker = $1`, NormalizeTicker(ticker))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) CreateTransaction(ctx context.Context, ticker, txType string, shares, priceUSD, exchangeRate decimal.Decimal, transactionTime time.Time) (int64, error) {
	var id int64
	q := `INSERT INTO transactions (ticker, type, shares, price_usd, exchange_rate, transaction_time)
	      VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, q, NormalizeTicker(ticker), txType, shares.String(), priceUSD.String(), exchangeRate.String(), transactionTime).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListTransactions returns transactions newest-first, optionally filtered
// by ticker, with offset/limit paging.
func (r *Repo) ListTransactions(ctx context.Context, ticker string, offset, limit int) ([]Transaction, error) {
	var (
		rows *sqlx.Rows
		err  error
	)
	if ticker != "" {
		rows, err = r.db.QueryxContext(ctx, `SELECT id, ticker, type, shares, price_usd, exchange_rate, transaction_time, created_at
			FROM transactions WHERE ticker = $1 ORDER BY transaction_time DESC OFFSET $2 LIMIT $3`, NormalizeTicker(ticker), offset, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT id, ticker, type, shares, price_usd, exchange_rate, transaction_time, created_at
			FROM transactions ORDER BY transaction_time DESC OFFSET $1 LIMIT $2`, offset, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.StructScan(&t); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *Repo) CountTransactions(ctx context.Context, ticker string) (int, error) {
	var n int
	if ticker != "" {
		return n, r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions WHERE ticker = $1`, NormalizeTicker(ticker))
	}
	return n, r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions`)
}

// TransactionsForTicker returns the full history for one ticker,
// newest-first.
func (r *Repo) TransactionsForTicker(ctx context.Context, ticker string) ([]Transaction, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, ticker, type, shares, price_usd, exchange_rate, transaction_time, created_at
		FROM transactions WHERE ticker = $1 ORDER BY transaction_time DESC`, NormalizeTicker(ticker))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.StructScan(&t); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// DeleteTransaction returns false when no row with the given id exists.
func (r *Repo) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) InsertAlert(ctx context.Context, ticker string, changePercent, price decimal.Decimal, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO alerts (ticker, change_percent, price, sent_at) VALUES ($1, $2::numeric, $3::numeric, $4)`,
		NormalizeTicker(ticker), changePercent.StringFixed(2), price.StringFixed(2), sentAt)
	return err
}

// AlertSentSince reports whether any alert for the ticker was recorded at
// or after the cutoff. The alert job's duplicate suppression rests on it.
func (r *Repo) AlertSentSince(ctx context.Context, ticker string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM alerts WHERE ticker = $1 AND sent_at >= $2)`, NormalizeTicker(ticker), since)
	return exists, err
}

func (r *Repo) ListAlerts(ctx context.Context, ticker string, limit int) ([]Alert, error) {
	var (
		rows *sqlx.Rows
		err  error
	)
	if ticker != "" {
		rows, err = r.db.QueryxContext(ctx, `SELECT id, ticker, change_percent, price, sent_at FROM alerts WHERE ticker = $1 ORDER BY sent_at DESC LIMIT $2`, NormalizeTicker(ticker), limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT id, ticker, change_percent, price, sent_at FROM alerts ORDER BY sent_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.StructScan(&a); err != nil {
			r.log.Warnf("scan alert failed: %v", err)
			continue
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r *Repo) CountAlerts(ctx context.Context, ticker string) (int, error) {
	var n int
	if ticker != "" {
		return n, r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM alerts WHERE ticker = $1`, NormalizeTicker(ticker))
	}
	return n, r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM alerts`)
}

// DeleteAlertsBefore prunes log entries older than the cutoff and returns
// how many were removed.
func (r *Repo) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
