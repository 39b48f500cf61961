package application

import (
	"valutatrade-hub/internal/domain"
)

// MergeOutcome is the result of combining one refresh batch: the records to
// store in the live table, the history entries to append, and the sources
// that failed.
type MergeOutcome struct {
	Records  []domain.RateRecord
	History  []domain.HistoryEntry
	Failures []SourceFailure
}

// PriorityFunc ranks sources for a pair; lower rank wins a same-timestamp
// conflict.
type PriorityFunc func(p domain.Pair, s domain.Source) int

// SourceMerger combines fetch results from multiple upstreams into one
// consistent batch. Every accepted record goes to history unconditionally;
// for the live table, the record with the later fetch time wins, with ties
// broken by source priority.
type SourceMerger struct {
	registry *domain.Registry
	priority PriorityFunc
}

type MergerOption func(*SourceMerger)

func WithPriority(fn PriorityFunc) MergerOption {
	return func(m *SourceMerger) { m.priority = fn }
}

func NewSourceMerger(registry *domain.Registry, opts ...MergerOption) *SourceMerger {
	m := &SourceMerger{registry: registry}
	for _, opt := range opts {
		opt(m)
	}
	if m.priority == nil {
		m.priority = m.defaultPriority
	}
	return m
}

// defaultPriority makes each source authoritative for the pair kinds it
// specializes in: the crypto source for crypto pairs, the fiat source for
// fiat-only pairs.
func (m *SourceMerger) defaultPriority(p domain.Pair, s domain.Source) int {
	preferred := domain.SourceExchangeRateAPI
	if m.isCryptoPair(p) {
		preferred = domain.SourceCoinGecko
	}
	if s == preferred {
		return 0
	}
	return 1
}

func (m *SourceMerger) isCryptoPair(p domain.Pair) bool {
	for _, code := range []string{p.Base, p.Quote} {
		if c, err := m.registry.Resolve(code); err == nil && c.IsCrypto() {
			return true
		}
	}
	return false
}

// Merge never fails as a whole: a broken source or a malformed record is
// skipped and the rest of the batch still goes through.
func (m *SourceMerger) Merge(results []FetchResult) MergeOutcome {
	var out MergeOutcome
	winners := make(map[string]domain.RateRecord)

	for _, res := range results {
		if res.Err != nil {
			out.Failures = append(out.Failures, SourceFailure{Source: res.Source, Reason: res.Err.Error()})
			continue
		}
		for _, rec := range res.Records {
			if rec.Validate() != nil {
				// Zero/negative or otherwise malformed quotes never
				// reach the table or history.
				continue
			}
			out.History = append(out.History, domain.NewHistoryEntry(rec))

			key := rec.Pair.Key()
			cur, ok := winners[key]
			if !ok || m.wins(rec, cur) {
				winners[key] = rec
			}
		}
	}

	for _, rec := range winners {
		out.Records = append(out.Records, rec)
	}
	return out
}

// wins reports whether candidate should replace incumbent for the live
// table: later fetch time first, source priority on equal timestamps.
func (m *SourceMerger) wins(candidate, incumbent domain.RateRecord) bool {
	if candidate.FetchedAt.After(incumbent.FetchedAt) {
		return true
	}
	if candidate.FetchedAt.Before(incumbent.FetchedAt) {
		return false
	}
	return m.priority(candidate.Pair, candidate.Source) < m.priority(incumbent.Pair, incumbent.Source)
}
