package handlers

import (
	"net/http"
	"strconv"
	"time"

	"folio/internal/database"
	"folio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	repo      *database.Repo
	valuation *service.Valuation
	market    service.MarketData
	rates     service.RateSource
	log       *logrus.Logger
}

func NewHandler(repo *database.Repo, v *service.Valuation, md service.MarketData, rates service.RateSource, log *logrus.Logger) *Handler {
	return &Handler{repo: repo, valuation: v, market: md, rates: rates, log: log}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

func (h *Handler) ListHoldings(c *gin.Context) {
	snaps, err := h.valuation.HoldingSnapshots(c.Request.Context())
	if err != nil {
		h.log.Errorf("list holdings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, snaps)
}

func (h *Handler) GetHolding(c *gin.Context) {
	ticker := c.Param("ticker")
	detail, err := h.valuation.HoldingDetail(c.Request.Context(), ticker)
	if err != nil {
		h.log.Errorf("holding detail failed for %s: %v", ticker, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "holding not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) DeleteHolding(c *gin.Context) {
	ticker := c.Param("ticker")
	deleted, err := h.repo.DeleteHolding(c.Request.Context(), ticker)
	if err != nil {
		h.log.Errorf("delete holding %s failed: %v", ticker, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "holding not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "holding deleted", "ticker": database.NormalizeTicker(ticker)})
}

type TransactionRequest struct {
	Ticker          string          `json:"ticker" binding:"required"`
	Type            string          `json:"type" binding:"required"`
	Shares          decimal.Decimal `json:"shares"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	TransactionTime time.Time       `json:"transaction_time" binding:"required"`
}

func (h *Handler) CreateTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid transaction body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type != database.TransactionBuy && req.Type != database.TransactionSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be BUY or SELL"})
		return
	}
	if !req.Shares.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shares must be greater than 0"})
		return
	}
	if !req.PriceUSD.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_usd must be greater than 0"})
		return
	}

	ctx := c.Request.Context()
	ticker := database.NormalizeTicker(req.Ticker)

	// The rate captured here is immutable for the life of the row.
	rate, ok := h.rates.USDToKRW(ctx)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange rate unavailable"})
		return
	}

	holding, err := h.repo.GetHolding(ctx, ticker)
	if err != nil {
		h.log.Errorf("get holding %s failed: %v", ticker, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if holding == nil {
		quote := h.market.GetQuote(ctx, ticker)
		if _, err := h.repo.CreateHolding(ctx, ticker, quote.Name); err != nil {
			h.log.Errorf("create holding %s failed: %v", ticker, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
	}

	id, err := h.repo.CreateTransaction(ctx, ticker, req.Type, req.Shares, req.PriceUSD, rate, req.TransactionTime)
	if err != nil {
		h.log.Errorf("create transaction failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "transaction recorded"})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	ticker := c.Query("ticker")
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)

	txs, err := h.repo.ListTransactions(c.Request.Context(), ticker, skip, limit)
	if err != nil {
		h.log.Errorf("list transactions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	total, err := h.repo.CountTransactions(c.Request.Context(), ticker)
	if err != nil {
		h.log.Errorf("count transactions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": service.TransactionViews(txs), "total_count": total})
}

func (h *Handler) DeleteTransaction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}
	deleted, err := h.repo.DeleteTransaction(c.Request.Context(), id)
	if err != nil {
		h.log.Errorf("delete transaction %d failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted", "id": id})
}

func (h *Handler) PortfolioSummary(c *gin.Context) {
	summary, err := h.valuation.Summary(c.Request.Context())
	if err != nil {
		h.log.Errorf("portfolio summary failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ExchangeRate(c *gin.Context) {
	rate, ok := h.rates.USDToKRW(c.Request.Context())
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange rate unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usd_to_krw": rate, "updated_at": time.Now()})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	ticker := c.Query("ticker")
	limit := intQuery(c, "limit", 10)

	alerts, err := h.repo.ListAlerts(c.Request.Context(), ticker, limit)
	if err != nil {
		h.log.Errorf("list alerts failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	total, err := h.repo.CountAlerts(c.Request.Context(), ticker)
	if err != nil {
		h.log.Errorf("count alerts failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total_count": total})
}

func intQuery(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil && iv >= 0 {
			return iv
		}
	}
	return def
}
