package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/domain"
)

// StalePolicy decides what buy/sell do when the best available rate is
// stale and a refresh could not fix it.
type StalePolicy string

const (
	// StaleWarn proceeds with the trade and flags the result.
	StaleWarn StalePolicy = "warn"
	// StaleBlock rejects the trade.
	StaleBlock StalePolicy = "block"
)

// EngineConfig carries the policy knobs of the transaction engine.
type EngineConfig struct {
	TTL             time.Duration
	Pivot           string
	Settlement      string
	StalePolicy     StalePolicy
	StartingBalance decimal.Decimal
}

type TxStatus string

const (
	StatusOK    TxStatus = "ok"
	StatusError TxStatus = "error"
)

// TransactionResult is the outcome of one buy/sell. It is produced fresh
// per call and not persisted here.
type TransactionResult struct {
	ID          string
	UserID      string
	Action      string
	Currency    string
	Amount      decimal.Decimal
	Rate        decimal.Decimal
	Total       decimal.Decimal
	Settlement  string
	Status      TxStatus
	ErrorDetail string
	IsStale     bool
	ExecutedAt  time.Time
}

// TradeRequest describes one buy or sell.
type TradeRequest struct {
	UserID   string
	Currency string
	Amount   decimal.Decimal
	// Settlement is the counter currency; empty means the configured default.
	Settlement string
	// IdempotencyKey, when set, dedupes client retries.
	IdempotencyKey string
}

// RateInfo answers a read-only rate query.
type RateInfo struct {
	Pair    domain.Pair
	Rate    decimal.Decimal
	IsStale bool
	AsOf    time.Time
}

// RefreshResult reports one refresh batch.
type RefreshResult struct {
	UpdatedPairs  []string
	FailedSources []SourceFailure
}

// Holding is one priced position of a portfolio valuation. Priced is false
// when no conversion path to the base currency exists.
type Holding struct {
	Currency    string
	Amount      decimal.Decimal
	ValueInBase decimal.Decimal
	Priced      bool
}

type Portfolio struct {
	UserID   string
	Base     string
	Holdings []Holding
	Total    decimal.Decimal
}

// TransactionEngine orchestrates rate refresh, conversion resolution and
// wallet mutation. Wallets are cached so that all operations for one user
// go through the same instance and its lock.
type TransactionEngine struct {
	registry *domain.Registry
	table    *domain.RateTable
	merger   *SourceMerger
	fetcher  RateFetcher
	resolver *ConversionResolver
	wallets  WalletStore
	rates    RateStore
	history  HistoryStore
	uow      UnitOfWork
	idem     IdempotencyStore
	clock    Clock
	events   EventSink
	cfg      EngineConfig

	refreshMu sync.Mutex

	cacheMu     sync.Mutex
	walletCache map[string]*domain.Wallet
}

type EngineOption func(*TransactionEngine)

func WithClock(c Clock) EngineOption      { return func(e *TransactionEngine) { e.clock = c } }
func WithEvents(s EventSink) EngineOption { return func(e *TransactionEngine) { e.events = s } }
func WithIdempotency(s IdempotencyStore) EngineOption {
	return func(e *TransactionEngine) { e.idem = s }
}
func WithUnitOfWork(u UnitOfWork) EngineOption { return func(e *TransactionEngine) { e.uow = u } }

func NewTransactionEngine(
	registry *domain.Registry,
	table *domain.RateTable,
	merger *SourceMerger,
	fetcher RateFetcher,
	wallets WalletStore,
	rates RateStore,
	history HistoryStore,
	cfg EngineConfig,
	opts ...EngineOption,
) *TransactionEngine {
	e := &TransactionEngine{
		registry:    registry,
		table:       table,
		merger:      merger,
		fetcher:     fetcher,
		wallets:     wallets,
		rates:       rates,
		history:     history,
		cfg:         cfg,
		walletCache: make(map[string]*domain.Wallet),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = realClock{}
	}
	if e.events == nil {
		e.events = NoopSink{}
	}
	if e.idem == nil {
		e.idem = NoopIdempotency{}
	}
	if e.uow == nil {
		e.uow = NoopUoW{}
	}
	e.resolver = NewConversionResolver(table, e, cfg.TTL, cfg.Pivot, WithResolverClock(e.clock))
	return e
}

// LoadState seeds the rate table from the persisted snapshot. Call once at
// startup, before serving traffic.
func (e *TransactionEngine) LoadState(ctx context.Context) error {
	records, err := e.rates.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rate snapshot: %w", err)
	}
	return e.table.PutBatch(records)
}

// Refresh implements the resolver's refresh collaborator: one bounded
// fetch-merge-store cycle across all sources.
func (e *TransactionEngine) Refresh(ctx context.Context) error {
	_, err := e.RefreshRates(ctx, nil)
	return err
}

// RefreshRates fetches from the given sources (nil means all), merges the
// results and updates the table and stores. One source failing never
// aborts the batch; it is reported in FailedSources. The call errors only
// when every source failed.
func (e *TransactionEngine) RefreshRates(ctx context.Context, sources []domain.Source) (RefreshResult, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	outcome := e.merger.Merge(e.fetcher.FetchAll(ctx, sources))

	result := RefreshResult{FailedSources: outcome.Failures}
	if len(outcome.Records) == 0 {
		if len(outcome.Failures) > 0 {
			return result, ErrAllSourcesFailed
		}
		return result, nil
	}

	if err := e.table.PutBatch(outcome.Records); err != nil {
		return result, err
	}
	for _, rec := range outcome.Records {
		result.UpdatedPairs = append(result.UpdatedPairs, rec.Pair.String())
	}
	sort.Strings(result.UpdatedPairs)

	err := e.uow.Do(ctx, func(ctx context.Context) error {
		if err := e.history.Append(ctx, outcome.History); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if err := e.rates.Save(ctx, e.table.Snapshot()); err != nil {
			return fmt.Errorf("save rates: %w", err)
		}
		return nil
	})
	return result, err
}

// GetRate resolves from->to read-only. It never touches any wallet.
func (e *TransactionEngine) GetRate(ctx context.Context, from, to string) (RateInfo, error) {
	fromCur, err := e.registry.Resolve(from)
	if err != nil {
		return RateInfo{}, err
	}
	toCur, err := e.registry.Resolve(to)
	if err != nil {
		return RateInfo{}, err
	}
	res, err := e.resolver.Rate(ctx, fromCur.Code, toCur.Code, true)
	if err != nil {
		return RateInfo{}, err
	}
	return RateInfo{Pair: res.Pair, Rate: res.Rate, IsStale: res.Stale, AsOf: res.AsOf}, nil
}

// Buy acquires req.Amount of req.Currency, debiting the settlement
// currency at the resolved rate.
func (e *TransactionEngine) Buy(ctx context.Context, req TradeRequest) (TransactionResult, error) {
	return e.trade(ctx, "buy", req)
}

// Sell disposes of req.Amount of req.Currency, crediting the settlement
// currency. The insufficient-funds check runs on the asset being sold.
func (e *TransactionEngine) Sell(ctx context.Context, req TradeRequest) (TransactionResult, error) {
	return e.trade(ctx, "sell", req)
}

func (e *TransactionEngine) trade(ctx context.Context, action string, req TradeRequest) (TransactionResult, error) {
	result := TransactionResult{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Action:     action,
		Currency:   req.Currency,
		Amount:     req.Amount,
		Status:     StatusError,
		ExecutedAt: e.clock.Now(),
	}

	if !req.Amount.IsPositive() {
		return e.fail(result, domain.ErrInvalidAmount)
	}
	cur, err := e.registry.Resolve(req.Currency)
	if err != nil {
		return e.fail(result, err)
	}
	result.Currency = cur.Code

	settlement := req.Settlement
	if settlement == "" {
		settlement = e.cfg.Settlement
	}
	settle, err := e.registry.Resolve(settlement)
	if err != nil {
		return e.fail(result, err)
	}
	result.Settlement = settle.Code

	if req.IdempotencyKey != "" {
		ok, err := e.idem.TryReserve(ctx, req.IdempotencyKey)
		if err != nil {
			return e.fail(result, fmt.Errorf("idempotency check: %w", err))
		}
		if !ok {
			return e.fail(result, ErrDuplicateRequest)
		}
	}

	res, err := e.resolver.Rate(ctx, cur.Code, settle.Code, true)
	if err != nil {
		return e.failReserved(ctx, result, req.IdempotencyKey, err)
	}
	result.Rate = res.Rate
	result.IsStale = res.Stale
	if res.Stale && e.cfg.StalePolicy == StaleBlock {
		return e.failReserved(ctx, result, req.IdempotencyKey, fmt.Errorf("%w: %s", domain.ErrStaleData, res.Pair))
	}

	// Total in settlement currency, rounded to its precision. An amount so
	// small it rounds to zero is below the minimum settleable unit.
	total := req.Amount.Mul(res.Rate).Round(settle.Precision)
	if !total.IsPositive() {
		return e.failReserved(ctx, result, req.IdempotencyKey, fmt.Errorf("%w: %s %s is below the minimum settleable amount",
			domain.ErrInvalidAmount, req.Amount, cur.Code))
	}
	result.Total = total

	wallet, err := e.wallet(ctx, req.UserID)
	if err != nil {
		return e.failReserved(ctx, result, req.IdempotencyKey, err)
	}

	if action == "buy" {
		err = wallet.ApplyTrade(settle.Code, total, cur.Code, req.Amount)
	} else {
		err = wallet.ApplyTrade(cur.Code, req.Amount, settle.Code, total)
	}
	if err != nil {
		return e.failReserved(ctx, result, req.IdempotencyKey, err)
	}

	if err := e.wallets.Save(ctx, wallet); err != nil {
		// The in-memory wallet is authoritative; a failed save is surfaced
		// but the trade itself already happened.
		result.Status = StatusOK
		e.emit(result)
		return result, fmt.Errorf("save wallet: %w", err)
	}

	result.Status = StatusOK
	e.emit(result)
	return result, nil
}

// PortfolioValue values every holding of the user in the base currency
// through the resolver. Holdings without any quote path stay unpriced
// instead of failing the whole valuation.
func (e *TransactionEngine) PortfolioValue(ctx context.Context, userID, base string) (Portfolio, error) {
	baseCur, err := e.registry.Resolve(base)
	if err != nil {
		return Portfolio{}, err
	}
	wallet, err := e.wallet(ctx, userID)
	if err != nil {
		return Portfolio{}, err
	}

	balances := wallet.Snapshot()
	codes := make([]string, 0, len(balances))
	for code := range balances {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	p := Portfolio{UserID: userID, Base: baseCur.Code}
	for _, code := range codes {
		h := Holding{Currency: code, Amount: balances[code]}
		res, err := e.resolver.Rate(ctx, code, baseCur.Code, true)
		if err == nil {
			h.ValueInBase = balances[code].Mul(res.Rate).Round(baseCur.Precision)
			h.Priced = true
			p.Total = p.Total.Add(h.ValueInBase)
		} else if !errors.Is(err, domain.ErrNoQuotePath) {
			return Portfolio{}, err
		}
		p.Holdings = append(p.Holdings, h)
	}
	return p, nil
}

// wallet returns the cached wallet for userID, loading or creating it on
// first use. New wallets start with the configured settlement-currency
// balance.
func (e *TransactionEngine) wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if w, ok := e.walletCache[userID]; ok {
		return w, nil
	}

	w, err := e.wallets.Get(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		w = domain.NewWallet(userID)
		if e.cfg.StartingBalance.IsPositive() {
			if err := w.Credit(e.cfg.Settlement, e.cfg.StartingBalance); err != nil {
				return nil, err
			}
		}
		if err := e.wallets.Save(ctx, w); err != nil {
			return nil, fmt.Errorf("save new wallet: %w", err)
		}
	default:
		return nil, fmt.Errorf("load wallet %s: %w", userID, err)
	}

	e.walletCache[userID] = w
	return w, nil
}

func (e *TransactionEngine) fail(result TransactionResult, err error) (TransactionResult, error) {
	result.Status = StatusError
	result.ErrorDetail = err.Error()
	e.emit(result)
	return result, err
}

// failReserved fails a trade that already holds an idempotency
// reservation. The key is released so a corrected retry is not rejected
// as a duplicate.
func (e *TransactionEngine) failReserved(ctx context.Context, result TransactionResult, key string, err error) (TransactionResult, error) {
	if key != "" {
		if relErr := e.idem.Release(ctx, key); relErr != nil {
			err = fmt.Errorf("%w (release idempotency key: %v)", err, relErr)
		}
	}
	return e.fail(result, err)
}

func (e *TransactionEngine) emit(result TransactionResult) {
	status := string(result.Status)
	e.events.Emit(Event{
		Action:   result.Action,
		User:     result.UserID,
		Currency: result.Currency,
		Amount:   result.Amount,
		Status:   status,
		Error:    result.ErrorDetail,
	})
}
