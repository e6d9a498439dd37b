package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/valutatrade/hub/internal/api"
	"github.com/valutatrade/hub/internal/auth"
	"github.com/valutatrade/hub/internal/jobs"
	"github.com/valutatrade/hub/internal/ledger"
	"github.com/valutatrade/hub/internal/provider"
	"github.com/valutatrade/hub/internal/publisher"
	"github.com/valutatrade/hub/internal/ratelimit"
	"github.com/valutatrade/hub/internal/rates"
	"github.com/valutatrade/hub/internal/registry"
	"github.com/valutatrade/hub/internal/secrets"
	"github.com/valutatrade/hub/internal/settlement"
	"github.com/valutatrade/hub/internal/store"
	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/logger"
	"github.com/valutatrade/hub/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [valutatrade-hub]...")

	// --- File store (users, portfolios, history, default rates backend) ---
	fileStore, err := store.NewFileStore(cfg, logger.L())
	if err != nil {
		logg.Fatalw("failed to init file store", "error", err)
	}

	// --- Rates backend: Redis when configured, otherwise the file store ---
	var ratesStore store.RatesStore = fileStore
	if cfg.RedisAddr != "" {
		redisStore, err := store.NewRedisRatesStore(cfg.RedisAddr, cfg.RedisDB, logger.L())
		if err != nil {
			logg.Fatalw("failed to init redis store", "error", err)
		}
		defer redisStore.Close() //nolint:errcheck
		ratesStore = redisStore
	}

	// --- History backend: Postgres when configured, otherwise the JSON file ---
	var historyStore store.HistoryStore = fileStore
	if cfg.DatabaseURL != "" {
		logg.Info("connecting to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		pgStore, err := store.NewPGHistoryStore(cfg.DatabaseURL, logger.L())
		if err != nil {
			logg.Fatalw("failed to init postgres history store", "error", err)
		}
		defer pgStore.Close()
		historyStore = pgStore
	}

	// --- Fiat API key: env value, or AWS Secrets Manager when configured ---
	apiKey := cfg.ExchangeRateAPIKey
	if cfg.ExchangeRateSecret != "" {
		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
		resolver := secrets.NewAPIKeyResolver(
			logger.L(),
			cfg.ExchangeRateAPIKey,
			cfg.ExchangeRateSecret,
			awsProvider,
			secrets.NewCache[string](30*time.Minute),
		)
		apiKey, err = resolver.Resolve(ctx)
		if err != nil {
			logg.Fatalw("failed to resolve fiat api key", "error", err)
		}
	}

	// --- Rate limiter ---
	rateMgr := ratelimit.NewManager(ratelimit.Config{
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
	})

	// --- Providers ---
	coinGecko := provider.NewCoinGecko(cfg, logger.L(), rateMgr)
	exchangeRate := provider.NewExchangeRate(cfg, logger.L(), rateMgr, apiKey)
	if cfg.MockMode() {
		logg.Warn("fiat provider running in mock mode; set EXCHANGERATE_API_KEY for live rates")
	}

	// --- Rate cache ---
	cache, err := rates.NewCache(ctx, cfg, logger.L(), ratesStore, historyStore, []rates.Binding{
		{Provider: coinGecko, Codes: cfg.CryptoCurrencies},
		{Provider: exchangeRate, Codes: cfg.FiatCurrencies},
	})
	if err != nil {
		logg.Fatalw("failed to init rate cache", "error", err)
	}

	// --- Ledger and users ---
	book, err := ledger.NewBook(ctx, logger.L(), fileStore)
	if err != nil {
		logg.Fatalw("failed to load portfolios", "error", err)
	}
	authSvc, err := auth.NewService(ctx, logger.L(), fileStore, book)
	if err != nil {
		logg.Fatalw("failed to load users", "error", err)
	}

	// --- Publisher ---
	var pub publisher.Publisher = publisher.Noop{}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		defer nc.Drain() //nolint:errcheck
		pub, err = publisher.NewNATS(logger.L(), nc, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
	}

	// --- Settlement (core trade logic) ---
	svc := settlement.NewService(
		logger.L(),
		cfg,
		registry.NewDefault(),
		cache,
		book,
		authSvc,
		pub,
	)

	// --- Background refresh (optional) ---
	if cfg.RefreshInterval > 0 {
		go jobs.NewRateRefreshJob(logger.L(), svc, cfg.RefreshInterval).Start(ctx)
	}

	app := fiber.New()
	api.RegisterRoutes(app, &api.Handler{
		Logger:     logger.L(),
		Auth:       authSvc,
		Settlement: svc,
	})

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down...")
	if err := app.Shutdown(); err != nil {
		logg.Errorw("fiber.shutdown_failed", "error", err)
	}
	logger.Sync()
}
