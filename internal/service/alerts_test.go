package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/database"
	"folio/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentAlert struct {
	ticker    string
	changePct decimal.Decimal
	price     decimal.Decimal
}

type fakeNotifier struct {
	fail bool
	sent []sentAlert
}

func (f *fakeNotifier) SendPriceAlert(ticker string, changePercent, price decimal.Decimal) bool {
	if f.fail {
		return false
	}
	f.sent = append(f.sent, sentAlert{ticker: ticker, changePct: changePercent, price: price})
	return true
}

// Wednesday 2024-03-13 10:00 EDT, well inside the regular session.
var marketOpenTime = time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)

func newTestJob(store *fakeStore, md *fakeMarket, n *fakeNotifier, threshold float64) *AlertJob {
	j := NewAlertJob(store, md, n, threshold, testLogger())
	j.now = func() time.Time { return marketOpenTime }
	return j
}

func TestMarketOpenGate(t *testing.T) {
	j := newTestJob(&fakeStore{}, &fakeMarket{}, &fakeNotifier{}, 5.0)

	cases := []struct {
		name string
		now  time.Time
		open bool
	}{
		{"weekday mid-session", marketOpenTime, true},
		{"weekday 09:30 sharp", time.Date(2024, 3, 13, 13, 30, 0, 0, time.UTC), true},
		{"weekday 09:29", time.Date(2024, 3, 13, 13, 29, 0, 0, time.UTC), false},
		{"weekday 16:00 close", time.Date(2024, 3, 13, 20, 0, 0, 0, time.UTC), false},
		{"weekday 03:00 eastern", time.Date(2024, 3, 13, 7, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2024, 3, 16, 14, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j.now = func() time.Time { return tc.now }
			assert.Equal(t, tc.open, j.marketOpen())
		})
	}
}

func TestRun_ClosedMarketIsNoOp(t *testing.T) {
	store := &fakeStore{
		holdings: []database.Holding{{Ticker: "VOO"}},
	}
	md := &fakeMarket{quotes: map[string]market.Quote{
		"VOO": {CurrentPrice: dp(110), PreviousClose: dp(100)}, // +10%, would breach
	}}
	n := &fakeNotifier{}
	j := newTestJob(store, md, n, 5.0)
	j.now = func() time.Time { return time.Date(2024, 3, 16, 14, 0, 0, 0, time.UTC) } // Saturday

	require.NoError(t, j.Run())
	assert.Empty(t, n.sent)
	assert.Empty(t, store.alerts)
}

func TestRun_ThresholdBoundaryIsInclusive(t *testing.T) {
	store := &fakeStore{
		holdings: []database.Holding{{Ticker: "EXACT"}, {Ticker: "UNDER"}},
	}
	md := &fakeMarket{quotes: map[string]market.Quote{
		"EXACT": {CurrentPrice: dp(105), PreviousClose: dp(100)},    // exactly +5.00%
		"UNDER": {CurrentPrice: dp(104.99), PreviousClose: dp(100)}, // +4.99%
	}}
	n := &fakeNotifier{}
	j := newTestJob(store, md, n, 5.0)

	require.NoError(t, j.Run())
	require.Len(t, n.sent, 1)
	assert.Equal(t, "EXACT", n.sent[0].ticker)
	assert.Equal(t, "5.00", n.sent[0].changePct.StringFixed(2))
	require.Len(t, store.alerts, 1)
	assert.Equal(t, "EXACT", store.alerts[0].Ticker)
}

func TestRun_NegativeMoveAlsoAlerts(t *testing.T) {
	store := &fakeStore{holdings: []database.Holding{{Ticker: "DOWN"}}}
	md := &fakeMarket{quotes: map[string]market.Quote{
		"DOWN": {CurrentPrice: dp(94), PreviousClose: dp(100)}, // -6%
	}}
	n := &fakeNotifier{}
	j := newTestJob(store, md, n, 5.0)

	require.NoError(t, j.Run())
	require.Len(t, n.sent, 1)
	assert.Equal(t, "-6.00", n.sent[0].changePct.StringFixed(2))
}

func TestRun_SuppressionWindow(t *testing.T) {
	md := &fakeMarket{quotes: map[string]market.Quote{
		"VOO": {CurrentPrice: dp(110), PreviousClose: dp(100)},
	}}

	t.Run("alert 30 minutes ago suppresses", func(t *testing.T) {
		store := &fakeStore{
			holdings: []database.Holding{{Ticker: "VOO"}},
			alerts:   []database.Alert{{Ticker: "VOO", SentAt: marketOpenTime.Add(-30 * time.Minute)}},
		}
		n := &fakeNotifier{}
		j := newTestJob(store, md, n, 5.0)

		require.NoError(t, j.Run())
		assert.Empty(t, n.sent)
		assert.Len(t, store.alerts, 1) // unchanged
	})

	t.Run("alert 61 minutes ago does not", func(t *testing.T) {
		store := &fakeStore{
			holdings: []database.Holding{{Ticker: "VOO"}},
			alerts:   []database.Alert{{Ticker: "VOO", SentAt: marketOpenTime.Add(-61 * time.Minute)}},
		}
		n := &fakeNotifier{}
		j := newTestJob(store, md, n, 5.0)

		require.NoError(t, j.Run())
		require.Len(t, n.sent, 1)
		assert.Len(t, store.alerts, 2)
	})
}

func TestRun_SendFailureLeavesNoRecord(t *testing.T) {
	store := &fakeStore{holdings: []database.Holding{{Ticker: "VOO"}}}
	md := &fakeMarket{quotes: map[string]market.Quote{
		"VOO": {CurrentPrice: dp(110), PreviousClose: dp(100)},
	}}
	n := &fakeNotifier{fail: true}
	j := newTestJob(store, md, n, 5.0)

	require.NoError(t, j.Run())
	assert.Empty(t, store.alerts) // next run may retry once the data still breaches
}

func TestRun_MissingDataSkipsTickerOnly(t *testing.T) {
	store := &fakeStore{holdings: []database.Holding{{Ticker: "DARK"}, {Ticker: "VOO"}}}
	md := &fakeMarket{quotes: map[string]market.Quote{
		// DARK has no quote at all
		"VOO": {CurrentPrice: dp(110), PreviousClose: dp(100)},
	}}
	n := &fakeNotifier{}
	j := newTestJob(store, md, n, 5.0)

	require.NoError(t, j.Run())
	require.Len(t, n.sent, 1)
	assert.Equal(t, "VOO", n.sent[0].ticker)
}

func TestRun_ZeroPreviousCloseIsSafe(t *testing.T) {
	store := &fakeStore{holdings: []database.Holding{{Ticker: "ZERO"}}}
	md := &fakeMarket{quotes: map[string]market.Quote{
		"ZERO": {CurrentPrice: dp(110), PreviousClose: dp(0)},
	}}
	n := &fakeNotifier{}
	j := newTestJob(store, md, n, 5.0)

	require.NoError(t, j.Run())
	assert.Empty(t, n.sent) // change defined as 0, below any threshold
}

func TestRun_ListingFailureAbortsRun(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	j := newTestJob(store, &fakeMarket{}, &fakeNotifier{}, 5.0)
	assert.Error(t, j.Run())
}

func TestAlertPruner(t *testing.T) {
	repo := &fakePruneLog{}
	p := NewAlertPruner(repo, 30, testLogger())
	p.now = func() time.Time { return marketOpenTime }

	require.NoError(t, p.Run())
	assert.Equal(t, marketOpenTime.AddDate(0, 0, -30), repo.cutoff)
}

type fakePruneLog struct {
	cutoff time.Time
}

func (f *fakePruneLog) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}
