package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/avadstore/storefront/internal/config"
	"github.com/avadstore/storefront/internal/events"
	"github.com/avadstore/storefront/internal/httpserver"
	"github.com/avadstore/storefront/internal/logging"
	"github.com/avadstore/storefront/internal/payments"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ledger, err := payments.OpenLedger(cfg.DatabaseURL, cfg.LedgerPath)
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}

	producer := events.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	if err := httpserver.Register(e, &httpserver.Deps{
		BackendURL: cfg.BackendURL,
		Production: cfg.Production(),
		Gateway:    payments.NewClient(cfg.TossAPIURL, cfg.TossSecretKey),
		Ledger:     ledger,
		Events:     producer,
		Logger:     logger,
	}); err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
