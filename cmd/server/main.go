package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"demobank/internal/api"
	"demobank/internal/auth"
	"demobank/internal/common"
	"demobank/internal/config"
	"demobank/internal/events"
	"demobank/internal/events/kafka"
	"demobank/internal/ledger"
	"demobank/internal/store"
	"demobank/internal/store/postgres"
	"demobank/internal/store/sqlite"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting demobank ledger service",
		zap.String("backend", cfg.Database.Backend))

	var ledgerStore store.Store
	switch cfg.Database.Backend {
	case "postgres":
		ledgerStore, err = postgres.New(ctx, cfg.Database)
	default:
		ledgerStore, err = sqlite.New(ctx, cfg.Database)
	}
	if err != nil {
		zap.L().Fatal("Failed to initialize store", zap.Error(err))
	}
	defer ledgerStore.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Events.Brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		zap.L().Info("Kafka publisher enabled",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic))
	}

	currencies, err := common.LoadCurrencyCodes(cfg.Server.CurrenciesFile)
	if err != nil {
		zap.L().Warn("Failed to load currency list, accepting any 3-letter code",
			zap.String("file", cfg.Server.CurrenciesFile),
			zap.Error(err))
	}

	engine := ledger.NewEngine(ledger.EngineConfig{
		Store:      ledgerStore,
		Gate:       auth.ContextGate{},
		Events:     publisher,
		Currencies: currencies,
	})

	router := api.NewRouter(api.NewHandler(engine))
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		zap.L().Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zap.L().Info("Shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Graceful shutdown failed", zap.Error(err))
	}
	zap.L().Info("Server stopped")
}
