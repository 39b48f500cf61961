package application_test

import (
	"context"
	"sync"
	"time"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"

	"github.com/shopspring/decimal"
)

func decodeBalances(raw map[string]string) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(raw))
	for code, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		balances[code] = d
	}
	return balances, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher returns canned results and counts calls.
type fakeFetcher struct {
	mu      sync.Mutex
	results []application.FetchResult
	calls   int
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ []domain.Source) []application.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setResults(results []application.FetchResult) {
	f.mu.Lock()
	f.results = results
	f.mu.Unlock()
}

type memRateStore struct {
	mu      sync.Mutex
	records []domain.RateRecord
	saves   int
}

func (s *memRateStore) Load(context.Context) ([]domain.RateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RateRecord(nil), s.records...), nil
}

func (s *memRateStore) Save(_ context.Context, records []domain.RateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]domain.RateRecord(nil), records...)
	s.saves++
	return nil
}

type memHistoryStore struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (s *memHistoryStore) Append(_ context.Context, entries []domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

type memWalletStore struct {
	mu      sync.Mutex
	wallets map[string]map[string]string
}

func newMemWalletStore() *memWalletStore {
	return &memWalletStore{wallets: make(map[string]map[string]string)}
}

func (s *memWalletStore) Get(_ context.Context, userID string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.wallets[userID]
	if !ok {
		return nil, application.ErrNotFound
	}
	balances, err := decodeBalances(raw)
	if err != nil {
		return nil, err
	}
	return domain.RestoreWallet(userID, balances)
}

func (s *memWalletStore) Save(_ context.Context, w *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := make(map[string]string)
	for code, b := range w.Snapshot() {
		raw[code] = b.String()
	}
	s.wallets[w.UserID()] = raw
	return nil
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []application.Event
}

func (s *recordingSink) Emit(e application.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) all() []application.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]application.Event(nil), s.events...)
}

// rejectingIdempotency fails every reservation after the first per key.
type rejectingIdempotency struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newRejectingIdempotency() *rejectingIdempotency {
	return &rejectingIdempotency{seen: make(map[string]bool)}
}

func (s *rejectingIdempotency) TryReserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *rejectingIdempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
	return nil
}
