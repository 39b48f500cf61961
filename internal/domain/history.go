package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is an append-only observation of a fetched rate. Entries are
// never updated or deleted.
type HistoryEntry struct {
	ID         string
	Pair       Pair
	Rate       decimal.Decimal
	Source     Source
	RecordedAt time.Time
}

// NewHistoryEntry builds the entry for a fetched record. The ID combines
// the pair key with the fetch timestamp, e.g. "BTC_USD_2026-08-29T10:00:00Z".
func NewHistoryEntry(rec RateRecord) HistoryEntry {
	ts := rec.FetchedAt.UTC()
	return HistoryEntry{
		ID:         rec.Pair.Key() + "_" + ts.Format("2006-01-02T15:04:05Z"),
		Pair:       rec.Pair,
		Rate:       rec.Rate,
		Source:     rec.Source,
		RecordedAt: ts,
	}
}
