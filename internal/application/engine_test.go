package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine  *application.TransactionEngine
	table   *domain.RateTable
	fetcher *fakeFetcher
	rates   *memRateStore
	history *memHistoryStore
	wallets *memWalletStore
	clock   *fakeClock
	events  *recordingSink
}

func newEngineFixture(t *testing.T, opts ...application.EngineOption) *engineFixture {
	t.Helper()
	f := &engineFixture{
		table:   domain.NewRateTable(),
		fetcher: &fakeFetcher{},
		rates:   &memRateStore{},
		history: &memHistoryStore{},
		wallets: newMemWalletStore(),
		clock:   newFakeClock(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)),
		events:  &recordingSink{},
	}
	registry := domain.DefaultRegistry()
	cfg := application.EngineConfig{
		TTL:             300 * time.Second,
		Pivot:           "USD",
		Settlement:      "USD",
		StalePolicy:     application.StaleWarn,
		StartingBalance: decimal.RequireFromString("1000"),
	}
	all := append([]application.EngineOption{
		application.WithClock(f.clock),
		application.WithEvents(f.events),
	}, opts...)
	f.engine = application.NewTransactionEngine(
		registry, f.table, application.NewSourceMerger(registry),
		f.fetcher, f.wallets, f.rates, f.history, cfg, all...,
	)
	return f
}

func (f *engineFixture) seedRates(t *testing.T, records ...domain.RateRecord) {
	t.Helper()
	require.NoError(t, f.table.PutBatch(records))
}

func TestEngine_BuyDebitsSettlement(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", now, domain.SourceCoinGecko))

	res, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID:   "alice",
		Currency: "BTC",
		Amount:   decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	require.Equal(t, application.StatusOK, res.Status)
	require.True(t, res.Total.Equal(decimal.RequireFromString("600")))
	require.Equal(t, "USD", res.Settlement)

	p, err := f.engine.PortfolioValue(context.Background(), "alice", "USD")
	require.NoError(t, err)
	byCode := map[string]application.Holding{}
	for _, h := range p.Holdings {
		byCode[h.Currency] = h
	}
	require.True(t, byCode["USD"].Amount.Equal(decimal.RequireFromString("400")))
	require.True(t, byCode["BTC"].Amount.Equal(decimal.RequireFromString("0.01")))
}

func TestEngine_SellInsufficientFunds(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", now, domain.SourceCoinGecko))

	_, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)

	res, err := f.engine.Sell(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.02"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, application.StatusError, res.Status)

	var ife *domain.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	require.Equal(t, "BTC", ife.Currency)
	require.True(t, ife.Available.Equal(decimal.RequireFromString("0.01")))
	require.True(t, ife.Requested.Equal(decimal.RequireFromString("0.02")))

	// Balances unchanged by the rejected trade.
	p, err := f.engine.PortfolioValue(context.Background(), "alice", "USD")
	require.NoError(t, err)
	for _, h := range p.Holdings {
		if h.Currency == "BTC" {
			require.True(t, h.Amount.Equal(decimal.RequireFromString("0.01")))
		}
	}
}

func TestEngine_BuySellRoundTrip(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", now, domain.SourceCoinGecko))

	_, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	_, err = f.engine.Sell(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)

	// Same rate both ways, so the round trip restores the start balance.
	p, err := f.engine.PortfolioValue(context.Background(), "alice", "USD")
	require.NoError(t, err)
	require.True(t, p.Total.Equal(decimal.RequireFromString("1000")), p.Total.String())
}

func TestEngine_UnknownCurrency(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "XYZ", Amount: decimal.RequireFromString("1"),
	})
	require.ErrorIs(t, err, domain.ErrCurrencyNotFound)

	_, err = f.engine.GetRate(context.Background(), "BTC", "XYZ")
	require.ErrorIs(t, err, domain.ErrCurrencyNotFound)
}

func TestEngine_RejectsNonPositiveAmount(t *testing.T) {
	f := newEngineFixture(t)

	for _, amount := range []string{"0", "-1"} {
		_, err := f.engine.Buy(context.Background(), application.TradeRequest{
			UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString(amount),
		})
		require.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
	}
}

func TestEngine_RejectsBelowMinimumSettleable(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.seedRates(t, record("ETH", "USD", "3100", now, domain.SourceCoinGecko))

	// 0.000001 ETH is worth 0.0031 USD, which rounds to 0.00.
	_, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "ETH", Amount: decimal.RequireFromString("0.000001"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestEngine_StaleWarnProceedsFlagged(t *testing.T) {
	f := newEngineFixture(t)
	fetched := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", fetched, domain.SourceCoinGecko))

	// Sources are down, so the triggered refresh cannot help.
	f.fetcher.setResults([]application.FetchResult{
		{Source: domain.SourceCoinGecko, Err: errors.New("down")},
		{Source: domain.SourceExchangeRateAPI, Err: errors.New("down")},
	})
	f.clock.Advance(301 * time.Second)

	res, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	require.Equal(t, application.StatusOK, res.Status)
	require.True(t, res.IsStale)
}

func TestEngine_StaleBlockRejects(t *testing.T) {
	f := newEngineFixture(t)
	fetched := f.clock.Now()

	registry := domain.DefaultRegistry()
	cfg := application.EngineConfig{
		TTL:             300 * time.Second,
		Pivot:           "USD",
		Settlement:      "USD",
		StalePolicy:     application.StaleBlock,
		StartingBalance: decimal.RequireFromString("1000"),
	}
	engine := application.NewTransactionEngine(
		registry, f.table, application.NewSourceMerger(registry),
		f.fetcher, f.wallets, f.rates, f.history, cfg,
		application.WithClock(f.clock),
	)

	f.seedRates(t, record("BTC", "USD", "60000", fetched, domain.SourceCoinGecko))
	f.fetcher.setResults([]application.FetchResult{
		{Source: domain.SourceCoinGecko, Err: errors.New("down")},
	})
	f.clock.Advance(301 * time.Second)

	_, err := engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.01"),
	})
	require.ErrorIs(t, err, domain.ErrStaleData)
}

func TestEngine_IdempotencyDedupe(t *testing.T) {
	f := newEngineFixture(t, application.WithIdempotency(newRejectingIdempotency()))
	now := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", now, domain.SourceCoinGecko))

	req := application.TradeRequest{
		UserID: "alice", Currency: "BTC",
		Amount:         decimal.RequireFromString("0.01"),
		IdempotencyKey: "key-1",
	}
	_, err := f.engine.Buy(context.Background(), req)
	require.NoError(t, err)

	_, err = f.engine.Buy(context.Background(), req)
	require.ErrorIs(t, err, application.ErrDuplicateRequest)

	// The duplicate did not touch the wallet.
	p, err := f.engine.PortfolioValue(context.Background(), "alice", "USD")
	require.NoError(t, err)
	for _, h := range p.Holdings {
		if h.Currency == "BTC" {
			require.True(t, h.Amount.Equal(decimal.RequireFromString("0.01")))
		}
	}
}

func TestEngine_IdempotencyKeyReleasedOnFailedTrade(t *testing.T) {
	f := newEngineFixture(t, application.WithIdempotency(newRejectingIdempotency()))
	now := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", now, domain.SourceCoinGecko))

	// The failed sell consumed no funds, so its key must not block the
	// corrected retry.
	_, err := f.engine.Sell(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC",
		Amount:         decimal.RequireFromString("1"),
		IdempotencyKey: "key-1",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	res, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC",
		Amount:         decimal.RequireFromString("0.01"),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, application.StatusOK, res.Status)

	// A successful trade keeps its reservation.
	_, err = f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC",
		Amount:         decimal.RequireFromString("0.01"),
		IdempotencyKey: "key-1",
	})
	require.ErrorIs(t, err, application.ErrDuplicateRequest)
}

func TestEngine_RefreshRates(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.fetcher.setResults([]application.FetchResult{
		{
			Source: domain.SourceCoinGecko,
			Records: []domain.RateRecord{
				record("BTC", "USD", "60000", now, domain.SourceCoinGecko),
				record("ETH", "USD", "3100", now, domain.SourceCoinGecko),
			},
		},
		{Source: domain.SourceExchangeRateAPI, Err: errors.New("invalid key")},
	})

	res, err := f.engine.RefreshRates(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"BTC/USD", "ETH/USD"}, res.UpdatedPairs)
	require.Len(t, res.FailedSources, 1)

	// Table, snapshot store and history all see the batch.
	require.Equal(t, 2, f.table.Len())
	require.Len(t, f.rates.records, 2)
	require.Len(t, f.history.entries, 2)
}

func TestEngine_RefreshAllSourcesFailed(t *testing.T) {
	f := newEngineFixture(t)
	f.fetcher.setResults([]application.FetchResult{
		{Source: domain.SourceCoinGecko, Err: errors.New("down")},
		{Source: domain.SourceExchangeRateAPI, Err: errors.New("down")},
	})

	res, err := f.engine.RefreshRates(context.Background(), nil)
	require.ErrorIs(t, err, application.ErrAllSourcesFailed)
	require.Len(t, res.FailedSources, 2)
	require.Empty(t, res.UpdatedPairs)
	require.Equal(t, 0, f.rates.saves)
}

func TestEngine_GetRateTriggersRefreshWhenMissing(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.fetcher.setResults([]application.FetchResult{
		{
			Source: domain.SourceCoinGecko,
			Records: []domain.RateRecord{
				record("BTC", "USD", "60000", now, domain.SourceCoinGecko),
			},
		},
	})

	info, err := f.engine.GetRate(context.Background(), "btc", "usd")
	require.NoError(t, err)
	require.Equal(t, 1, f.fetcher.callCount())
	require.True(t, info.Rate.Equal(decimal.RequireFromString("60000")))
	require.False(t, info.IsStale)
}

func TestEngine_LoadState(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.rates.records = []domain.RateRecord{
		record("BTC", "USD", "60000", now, domain.SourceCoinGecko),
	}

	require.NoError(t, f.engine.LoadState(context.Background()))
	require.Equal(t, 1, f.table.Len())

	info, err := f.engine.GetRate(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	require.True(t, info.Rate.Equal(decimal.RequireFromString("60000")))
}

func TestEngine_PortfolioUnpricedHolding(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.seedRates(t,
		record("BTC", "USD", "60000", now, domain.SourceCoinGecko),
	)

	// Seed a persisted wallet holding SOL, which has no quote path.
	w := domain.NewWallet("alice")
	require.NoError(t, w.Credit("USD", decimal.RequireFromString("700")))
	require.NoError(t, w.Credit("BTC", decimal.RequireFromString("0.005")))
	require.NoError(t, w.Credit("SOL", decimal.RequireFromString("2")))
	require.NoError(t, f.wallets.Save(context.Background(), w))

	p, err := f.engine.PortfolioValue(context.Background(), "alice", "USD")
	require.NoError(t, err)

	byCode := map[string]application.Holding{}
	for _, h := range p.Holdings {
		byCode[h.Currency] = h
	}
	require.True(t, byCode["BTC"].Priced)
	require.True(t, byCode["USD"].Priced)
	require.False(t, byCode["SOL"].Priced)
	require.True(t, byCode["SOL"].ValueInBase.IsZero())
	// 0.005 BTC * 60000 + 700 USD; the unpriced SOL adds nothing.
	require.True(t, p.Total.Equal(decimal.RequireFromString("1000")), p.Total.String())
}

func TestEngine_NewWalletGetsStartingBalance(t *testing.T) {
	f := newEngineFixture(t)

	p, err := f.engine.PortfolioValue(context.Background(), "fresh-user", "USD")
	require.NoError(t, err)
	require.Len(t, p.Holdings, 1)
	require.Equal(t, "USD", p.Holdings[0].Currency)
	require.True(t, p.Holdings[0].Amount.Equal(decimal.RequireFromString("1000")))

	// The new wallet is persisted immediately.
	_, err = f.wallets.Get(context.Background(), "fresh-user")
	require.NoError(t, err)
}

func TestEngine_EmitsEvents(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()
	f.seedRates(t, record("BTC", "USD", "60000", now, domain.SourceCoinGecko))

	_, err := f.engine.Buy(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	_, err = f.engine.Sell(context.Background(), application.TradeRequest{
		UserID: "alice", Currency: "BTC", Amount: decimal.RequireFromString("5"),
	})
	require.Error(t, err)

	events := f.events.all()
	require.Len(t, events, 2)
	require.Equal(t, "buy", events[0].Action)
	require.Equal(t, "ok", events[0].Status)
	require.Equal(t, "sell", events[1].Action)
	require.Equal(t, "error", events[1].Status)
	require.NotEmpty(t, events[1].Error)
}
