package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/zad/exchange-api/internal/cache"
	"github.com/zad/exchange-api/internal/config"
	"github.com/zad/exchange-api/internal/events/kafka"
	"github.com/zad/exchange-api/internal/generator"
	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/ledger"
	"github.com/zad/exchange-api/internal/ratelimit"
	"github.com/zad/exchange-api/internal/rates"
	"github.com/zad/exchange-api/internal/retry"
	"github.com/zad/exchange-api/internal/server"
	"github.com/zad/exchange-api/internal/status"
	"github.com/zad/exchange-api/internal/storage/memory"
	"github.com/zad/exchange-api/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Account store: Postgres when configured, seeded memory store otherwise.
	var store interfaces.AccountStore
	var closeStore func() error
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		store = pg
		closeStore = pg.Close
		log.Info("connected to postgres")
	} else {
		mem := memory.NewStore()
		mem.Seed(cfg.SeedFirstUser, cfg.SeedUsers, decimal.NewFromInt(cfg.SeedBalance))
		store = mem
		closeStore = func() error { return nil }
		log.Info("using seeded in-memory account store", "users", cfg.SeedUsers)
	}

	kv := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := kv.Ping(ctx); err != nil {
		log.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	rateClient := rates.NewClient(cfg.RateAPIURL, cfg.RateAPIKey, cfg.RateAPITimeout, log)
	rateResolver := rates.NewResolver(kv, rateClient, log)

	ledgerService := ledger.NewService(store, rateResolver, log)
	statusCache := status.NewCache(kv)
	limiter := ratelimit.NewLimiter(kv, log)

	producer := kafka.NewProducer(cfg.KafkaBrokers, statusCache, log)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, ledgerService, statusCache, log)
	scheduler := retry.NewScheduler(statusCache, producer, cfg.RetryInterval, log)

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "error", err)
		}
	}()
	go consumer.DrainDeadLetters(ctx)
	go scheduler.Run(ctx)

	if cfg.GeneratorEnabled {
		gen := generator.New(producer, cfg.GeneratorInterval, cfg.GeneratorBatch,
			cfg.GeneratorWorkers, cfg.SeedUsers, cfg.SeedFirstUser, log)
		go gen.Run(ctx)
		log.Info("bulk request generator enabled",
			"interval", cfg.GeneratorInterval, "batch", cfg.GeneratorBatch)
	}

	app := server.NewRouter(&server.Handler{
		Limiter:  limiter,
		Ledger:   ledgerService,
		Producer: producer,
		Status:   statusCache,
		Log:      log,
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server stopped", "error", err)
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	log.Info("shutting down")

	cancel()
	if err := app.Shutdown(); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := producer.Close(); err != nil {
		log.Error("producer close failed", "error", err)
	}
	if err := kv.Close(); err != nil {
		log.Error("redis close failed", "error", err)
	}
	if err := closeStore(); err != nil {
		log.Error("store close failed", "error", err)
	}
	log.Info("server exited")
}
