package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type stubRates struct {
	rate decimal.Decimal
	ok   bool
}

func (s *stubRates) USDToKRW(ctx context.Context) (decimal.Decimal, bool) {
	return s.rate, s.ok
}

func newRouter(rates *stubRates) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	// validation and the rate gate run before any repo access, so the
	// store and market client stay nil here
	h := NewHandler(nil, nil, nil, rates, log)
	r := gin.New()
	r.POST("/transactions", h.CreateTransaction)
	r.GET("/exchange-rate", h.ExchangeRate)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateTransaction_ValidationRejectsBeforeAnyWrite(t *testing.T) {
	r := newRouter(&stubRates{ok: true, rate: decimal.NewFromInt(1300)})

	cases := []struct {
		name string
		body string
	}{
		{"zero shares", `{"ticker":"VOO","type":"BUY","shares":0,"price_usd":100,"transaction_time":"2024-03-13T10:00:00Z"}`},
		{"zero price", `{"ticker":"VOO","type":"BUY","shares":10,"price_usd":0,"transaction_time":"2024-03-13T10:00:00Z"}`},
		{"negative shares", `{"ticker":"VOO","type":"SELL","shares":-1,"price_usd":100,"transaction_time":"2024-03-13T10:00:00Z"}`},
		{"bad side", `{"ticker":"VOO","type":"HOLD","shares":10,"price_usd":100,"transaction_time":"2024-03-13T10:00:00Z"}`},
		{"missing ticker", `{"type":"BUY","shares":10,"price_usd":100,"transaction_time":"2024-03-13T10:00:00Z"}`},
		{"missing time", `{"ticker":"VOO","type":"BUY","shares":10,"price_usd":100}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(r, "/transactions", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateTransaction_RateUnavailableIs503(t *testing.T) {
	r := newRouter(&stubRates{ok: false})
	w := postJSON(r, "/transactions", `{"ticker":"VOO","type":"BUY","shares":10,"price_usd":100,"transaction_time":"2024-03-13T10:00:00Z"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExchangeRate(t *testing.T) {
	r := newRouter(&stubRates{ok: true, rate: decimal.NewFromFloat(1320.5)})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exchange-rate", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1320.5")

	r = newRouter(&stubRates{ok: false})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exchange-rate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
