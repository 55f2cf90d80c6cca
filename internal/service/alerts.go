package service

import (
	"context"
	"time"
	_ "time/tzdata" // market-hours gate needs America/New_York on bare hosts

	"folio/internal/database"
	"folio/internal/market"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AlertStore is what the alert job needs from the repository.
type AlertStore interface {
	ListHoldings(ctx context.Context) ([]database.Holding, error)
	AlertSentSince(ctx context.Context, ticker string, since time.Time) (bool, error)
	InsertAlert(ctx context.Context, ticker string, changePercent, price decimal.Decimal, sentAt time.Time) error
}

// Notifier delivers one alert message and reports whether it went out.
type Notifier interface {
	SendPriceAlert(ticker string, changePercent, price decimal.Decimal) bool
}

const suppressionWindow = time.Hour

// AlertJob checks every tracked ticker against its previous close while
// the US market is in its regular session and mails the owner on moves
// at or beyond the threshold, at most once per ticker per rolling hour.
//
// It deliberately scans all holdings, including fully sold-off ones;
// valuation views use the net-positive subset instead.
type AlertJob struct {
	store     AlertStore
	market    MarketData
	notifier  Notifier
	threshold decimal.Decimal
	log       *logrus.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewAlertJob(store AlertStore, md MarketData, notifier Notifier, thresholdPct float64, log *logrus.Logger) *AlertJob {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata missing on the host; gate against UTC rather than not at all
		log.Errorf("load market timezone failed, falling back to UTC: %v", err)
		loc = time.UTC
	}
	return &AlertJob{
		store:     store,
		market:    md,
		notifier:  notifier,
		threshold: decimal.NewFromFloat(thresholdPct),
		log:       log,
		loc:       loc,
		now:       time.Now,
	}
}

func (j *AlertJob) Name() string { return "price-alert-check" }

// Run is the scheduler entry point. A closed market is a logged no-op,
// not an error; only a failed holdings listing aborts the run.
func (j *AlertJob) Run() error {
	ctx := context.Background()
	if !j.marketOpen() {
		j.log.Info("US market closed, skipping price check")
		return nil
	}
	return j.checkPriceChanges(ctx)
}

// marketOpen reports whether the reference market is in its regular
// session: Mon-Fri 09:30-16:00 in the market's own timezone.
func (j *AlertJob) marketOpen() bool {
	now := j.now().In(j.loc)
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	afterOpen := now.Hour() > 9 || (now.Hour() == 9 && now.Minute() >= 30)
	beforeClose := now.Hour() < 16
	return afterOpen && beforeClose
}

func (j *AlertJob) checkPriceChanges(ctx context.Context) error {
	j.log.Info("price change check started")

	holdings, err := j.store.ListHoldings(ctx)
	if err != nil {
		j.log.Errorf("list holdings failed: %v", err)
		return err
	}
	if len(holdings) == 0 {
		j.log.Info("no holdings to check")
		return nil
	}

	for _, h := range holdings {
		j.checkTicker(ctx, h.Ticker)
	}
	return nil
}

// checkTicker handles one instrument; any failure here is contained so a
// single ticker's outage never aborts the rest of the scan.
func (j *AlertJob) checkTicker(ctx context.Context, ticker string) {
	current := j.market.CurrentPrice(ctx, ticker)
	previous := j.market.PreviousClose(ctx, ticker)
	if current == nil || previous == nil {
		j.log.Warnf("%s: price data unavailable, skipping", ticker)
		return
	}

	changePct := market.ChangePercent(*current, *previous)
	j.log.Debugf("%s: $%s (%s%%)", ticker, current.StringFixed(2), changePct.StringFixed(2))

	if changePct.Abs().LessThan(j.threshold) {
		return
	}
	j.sendAlertIfNeeded(ctx, ticker, changePct, *current)
}

// sendAlertIfNeeded enforces the rolling one-hour suppression window and
// records an alert only after a successful send, so a failed send is
// naturally retried on a later run.
func (j *AlertJob) sendAlertIfNeeded(ctx context.Context, ticker string, changePct, price decimal.Decimal) {
	since := j.now().Add(-suppressionWindow)
	sent, err := j.store.AlertSentSince(ctx, ticker, since)
	if err != nil {
		j.log.Errorf("%s: suppression lookup failed: %v", ticker, err)
		return
	}
	if sent {
		j.log.Infof("%s: alert already sent within the last hour, suppressing", ticker)
		return
	}

	if !j.notifier.SendPriceAlert(ticker, changePct, price) {
		j.log.Warnf("%s: alert send failed", ticker)
		return
	}
	if err := j.store.InsertAlert(ctx, ticker, changePct, price, j.now()); err != nil {
		j.log.Errorf("%s: record alert failed: %v", ticker, err)
		return
	}
	j.log.Infof("alert sent: %s %s%%", ticker, changePct.StringFixed(2))
}

// AlertLog is the pruning slice of the repository.
type AlertLog interface {
	DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertPruner removes alert log entries older than the retention period.
type AlertPruner struct {
	repo          AlertLog
	retentionDays int
	log           *logrus.Logger
	now           func() time.Time
}

func NewAlertPruner(repo AlertLog, retentionDays int, log *logrus.Logger) *AlertPruner {
	return &AlertPruner{repo: repo, retentionDays: retentionDays, log: log, now: time.Now}
}

func (p *AlertPruner) Name() string { return "alert-log-prune" }

func (p *AlertPruner) Run() error {
	cutoff := p.now().AddDate(0, 0, -p.retentionDays)
	n, err := p.repo.DeleteAlertsBefore(context.Background(), cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		p.log.Infof("pruned %d alerts older than %d days", n, p.retentionDays)
	}
	return nil
}
