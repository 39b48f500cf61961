package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/config"
	"valutatrade-hub/internal/domain"
	"valutatrade-hub/internal/infrastructure/httpx"
	"valutatrade-hub/internal/infrastructure/jsonstore"
	"valutatrade-hub/internal/infrastructure/logx"
	"valutatrade-hub/internal/infrastructure/pg"
	"valutatrade-hub/internal/infrastructure/provider"
	redisstore "valutatrade-hub/internal/infrastructure/redis"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Stores groups the persistence ports of one storage backend.
type Stores struct {
	Rates   application.RateStore
	History application.HistoryStore
	Wallets application.WalletStore
	UoW     application.UnitOfWork
	Ping    func(ctx context.Context) error
}

// BuildStores wires the storage backend selected by STORAGE ("json" or
// "pg").
func BuildStores(ctx context.Context, cfg config.Config) (Stores, func(), error) {
	log := logx.L()

	switch cfg.Storage {
	case "json":
		store, err := jsonstore.New(cfg.DataDir)
		if err != nil {
			return Stores{}, func() {}, err
		}
		return Stores{
			Rates:   store.Rates(),
			History: store.History(),
			Wallets: store.Wallets(),
			UoW:     application.NoopUoW{},
		}, func() {}, nil
	case "pg":
		if cfg.DatabaseURL == "" {
			return Stores{}, func() {}, fmt.Errorf("DATABASE_URL is required for STORAGE=pg")
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return Stores{}, func() {}, err
		}
		if err := pg.RunMigrations(ctx, db); err != nil {
			db.Close()
			return Stores{}, func() {}, err
		}
		cleanup := func() {
			log.Info("closing pg")
			db.Close()
		}
		return Stores{
			Rates:   pg.NewRateRepo(db),
			History: pg.NewHistoryRepo(db),
			Wallets: pg.NewWalletRepo(db),
			UoW:     pg.NewUnitOfWork(db),
			Ping:    db.Ping,
		}, cleanup, nil
	default:
		return Stores{}, func() {}, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
}

// BuildFetcher wires the rate sources. PROVIDER=live talks to CoinGecko and
// ExchangeRate-API; anything else serves fixed fake rates.
func BuildFetcher(cfg config.Config, registry *domain.Registry) application.RateFetcher {
	if cfg.Provider != "live" {
		return provider.NewMultiFetcher(cfg.RequestTimeout, provider.NewFakeCrypto(), provider.NewFakeFiat())
	}

	hc := &httpx.Client{HTTP: &http.Client{Timeout: cfg.RequestTimeout}}
	fiats := make([]string, 0)
	for _, code := range registry.CodesByKind(domain.KindFiat) {
		if code != cfg.PivotCurrency {
			fiats = append(fiats, code)
		}
	}
	return provider.NewMultiFetcher(cfg.RequestTimeout,
		&provider.CoinGeckoClient{
			BaseURL: cfg.CoinGeckoBase,
			HTTP:    hc,
			Pivot:   cfg.PivotCurrency,
			Cryptos: registry.CodesByKind(domain.KindCrypto),
		},
		&provider.ExchangeRateAPIClient{
			BaseURL: cfg.ExchangeRateAPIBase,
			APIKey:  cfg.ExchangeRateAPIKey,
			HTTP:    hc,
			Base:    cfg.PivotCurrency,
			Fiats:   fiats,
		},
	)
}

// BuildIdempotency wires the dedupe store behind X-Idempotency-Key.
// IDEMPOTENCY_BACKEND=redis enables it; anything else is a no-op.
func BuildIdempotency(cfg config.Config) (application.IdempotencyStore, func(), error) {
	if cfg.IdempotencyBackend != "redis" {
		return application.NoopIdempotency{}, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cleanup := func() { _ = rdb.Close() }
	return redisstore.New(rdb, cfg.RedisTTL), cleanup, nil
}

// BuildEngine assembles the transaction engine and seeds its rate table
// from the persisted snapshot.
func BuildEngine(ctx context.Context, cfg config.Config, registry *domain.Registry, stores Stores, fetcher application.RateFetcher, idem application.IdempotencyStore) (*application.TransactionEngine, error) {
	if _, err := registry.Resolve(cfg.PivotCurrency); err != nil {
		return nil, fmt.Errorf("pivot currency: %w", err)
	}
	if _, err := registry.Resolve(cfg.BaseCurrency); err != nil {
		return nil, fmt.Errorf("base currency: %w", err)
	}

	starting, err := decimal.NewFromString(cfg.StartingBalance)
	if err != nil {
		return nil, fmt.Errorf("parse STARTING_BALANCE: %w", err)
	}

	policy := application.StaleWarn
	if cfg.StalePolicy == string(application.StaleBlock) {
		policy = application.StaleBlock
	}

	engine := application.NewTransactionEngine(
		registry,
		domain.NewRateTable(),
		application.NewSourceMerger(registry),
		fetcher,
		stores.Wallets,
		stores.Rates,
		stores.History,
		application.EngineConfig{
			TTL:             cfg.RatesTTL,
			Pivot:           cfg.PivotCurrency,
			Settlement:      cfg.BaseCurrency,
			StalePolicy:     policy,
			StartingBalance: starting,
		},
		application.WithEvents(logx.NewEventSink(logx.L())),
		application.WithIdempotency(idem),
		application.WithUnitOfWork(stores.UoW),
	)
	if err := engine.LoadState(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}
