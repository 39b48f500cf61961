package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// invertPrecision keeps inverted quotes exact enough for sub-unit amounts
// (satoshi-level and below).
const invertPrecision = 16

// RateTable holds the latest known rate per ordered pair. It is shared and
// read-mostly; batch writes are atomic with respect to readers.
type RateTable struct {
	mu      sync.RWMutex
	records map[string]RateRecord
}

func NewRateTable() *RateTable {
	return &RateTable{records: make(map[string]RateRecord)}
}

func (t *RateTable) Get(p Pair) (RateRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[p.Key()]
	return rec, ok
}

// Put stores the record, replacing any previous one for the same pair.
// Merge policy between sources is decided upstream; the table itself is
// last-write-wins.
func (t *RateTable) Put(rec RateRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.records[rec.Pair.Key()] = rec
	t.mu.Unlock()
	return nil
}

// PutBatch stores all records under a single write lock, so a concurrent
// reader sees either none or all of the batch.
func (t *RateTable) PutBatch(recs []RateRecord) error {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	t.mu.Lock()
	for _, rec := range recs {
		t.records[rec.Pair.Key()] = rec
	}
	t.mu.Unlock()
	return nil
}

// IsStale reports whether the pair has no record or its record is older
// than ttl at the given instant. A record aged exactly ttl is still fresh.
func (t *RateTable) IsStale(p Pair, ttl time.Duration, now time.Time) bool {
	rec, ok := t.Get(p)
	if !ok {
		return true
	}
	return now.Sub(rec.FetchedAt) > ttl
}

// Invert derives a quote for p from the reverse pair, if present. The two
// directions may come from independent fetches, so the derived rate is an
// approximation, not a guaranteed exact reciprocal.
func (t *RateTable) Invert(p Pair) (RateRecord, bool) {
	rev, ok := t.Get(p.Reverse())
	if !ok {
		return RateRecord{}, false
	}
	return RateRecord{
		Pair:      p,
		Rate:      decimal.New(1, 0).DivRound(rev.Rate, invertPrecision),
		FetchedAt: rev.FetchedAt,
		Source:    rev.Source,
	}, true
}

// Snapshot returns all records ordered by pair key.
func (t *RateTable) Snapshot() []RateRecord {
	t.mu.RLock()
	out := make([]RateRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.Key() < out[j].Pair.Key() })
	return out
}

func (t *RateTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
