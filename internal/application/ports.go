package application

import (
	"context"
	"time"

	"valutatrade-hub/internal/domain"
)

// FetchResult is what one upstream source produced during a refresh: either
// a list of normalized records or a failure. A failing source never aborts
// the batch.
type FetchResult struct {
	Source  domain.Source
	Records []domain.RateRecord
	Err     error
}

// RateFetcher collects quotes from upstream sources. An empty sources slice
// means "all configured sources". Implementations must bound each fetch
// with a timeout; the engine never waits open-endedly.
type RateFetcher interface {
	FetchAll(ctx context.Context, sources []domain.Source) []FetchResult
}

// RateStore persists the live rate table snapshot.
type RateStore interface {
	Load(ctx context.Context) ([]domain.RateRecord, error)
	Save(ctx context.Context, records []domain.RateRecord) error
}

// HistoryStore appends fetched-rate observations. Entries are immutable.
type HistoryStore interface {
	Append(ctx context.Context, entries []domain.HistoryEntry) error
}

// WalletStore loads and saves per-user wallets. Get returns ErrNotFound for
// a user without a stored wallet.
type WalletStore interface {
	Get(ctx context.Context, userID string) (*domain.Wallet, error)
	Save(ctx context.Context, w *domain.Wallet) error
}

// UnitOfWork provides a minimal transaction boundary using context
// propagation. Backends without transactions use NoopUoW.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopUoW executes the function without starting a transaction.
type NoopUoW struct{}

func (NoopUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// IdempotencyStore handles short-lived deduplication of buy/sell retries.
type IdempotencyStore interface {
	// TryReserve returns true if key was absent and is now reserved.
	// Returns false if the key already exists (duplicate).
	TryReserve(ctx context.Context, key string) (bool, error)
	// Release frees a reservation so a corrected retry of a failed trade
	// is not treated as a duplicate.
	Release(ctx context.Context, key string) error
}

// NoopIdempotency always succeeds; useful for tests/dev when Redis is disabled.
type NoopIdempotency struct{}

func (NoopIdempotency) TryReserve(context.Context, string) (bool, error) { return true, nil }
func (NoopIdempotency) Release(context.Context, string) error            { return nil }

// Clock is injected for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
