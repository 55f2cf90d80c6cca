package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/forex"
	"folio/internal/handlers"
	"folio/internal/mail"
	"folio/internal/market"
	"folio/internal/scheduler"
	"folio/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	db, err := initDB(cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := database.New(db, logger)
	quotes := market.NewClient(cfg.QuoteAPIURL, logger)
	rates := forex.NewProvider(cfg.ExchangeRateAPIURL, logger)
	mailer := mail.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.AlertEmail, cfg.AlertThreshold, logger)
	valuation := service.NewValuation(repo, quotes, rates, logger)

	if !mailer.Configured() {
		logger.Warn("mail credentials absent, price alerts will be checked but not delivered")
	}

	sched := scheduler.New(logger)
	alertJob := service.NewAlertJob(repo, quotes, mailer, cfg.AlertThreshold, logger)
	if err := sched.AddJob(fmt.Sprintf("@every %dm", cfg.AlertCheckInterval), alertJob); err != nil {
		logger.Fatalf("schedule alert job: %v", err)
	}
	pruner := service.NewAlertPruner(repo, cfg.AlertRetentionDays, logger)
	if err := sched.AddJob("@daily", pruner); err != nil {
		logger.Fatalf("schedule alert pruner: %v", err)
	}
	sched.Start()

	h := handlers.NewHandler(repo, valuation, quotes, rates, logger)

	rg := gin.Default()
	rg.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	rg.GET("/health", h.Health)
	rg.GET("/holdings", h.ListHoldings)
	rg.GET("/holdings/:ticker", h.GetHolding)
	rg.DELETE("/holdings/:ticker", h.DeleteHolding)
	rg.POST("/transactions", h.CreateTransaction)
	rg.GET("/transactions", h.ListTransactions)
	rg.DELETE("/transactions/:id", h.DeleteTransaction)
	rg.GET("/portfolio/summary", h.PortfolioSummary)
	rg.GET("/exchange-rate", h.ExchangeRate)
	rg.GET("/alerts", h.ListAlerts)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: rg}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

func initDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}
