package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"
)

// RateRepo persists the live rate snapshot.
type RateRepo struct{ db *DB }

var _ application.RateStore = (*RateRepo)(nil)

func NewRateRepo(db *DB) *RateRepo { return &RateRepo{db: db} }

func (r *RateRepo) Load(ctx context.Context) ([]domain.RateRecord, error) {
	const q = `SELECT base, quote, rate::text, fetched_at, source FROM rates`
	rows, err := r.db.querier(ctx).Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	defer rows.Close()

	var out []domain.RateRecord
	for rows.Next() {
		var base, quote, rateStr, source string
		var fetchedAt time.Time
		if err := rows.Scan(&base, &quote, &rateStr, &fetchedAt, &source); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored rate %q: %w", rateStr, err)
		}
		out = append(out, domain.RateRecord{
			Pair:      domain.NewPair(base, quote),
			Rate:      rate,
			FetchedAt: fetchedAt,
			Source:    domain.Source(source),
		})
	}
	return out, rows.Err()
}

func (r *RateRepo) Save(ctx context.Context, records []domain.RateRecord) error {
	const up = `
        INSERT INTO rates(base, quote, rate, fetched_at, source)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (base, quote) DO UPDATE
          SET rate=EXCLUDED.rate, fetched_at=EXCLUDED.fetched_at, source=EXCLUDED.source`
	q := r.db.querier(ctx)
	for _, rec := range records {
		if _, err := q.Exec(ctx, up, rec.Pair.Base, rec.Pair.Quote, rec.Rate.String(), rec.FetchedAt, string(rec.Source)); err != nil {
			return fmt.Errorf("upsert rate %s: %w", rec.Pair, err)
		}
	}
	return nil
}

// HistoryRepo appends fetched-rate observations. The primary key carries
// the pair and fetch timestamp, so re-observing the same fetch is a no-op.
type HistoryRepo struct{ db *DB }

var _ application.HistoryStore = (*HistoryRepo)(nil)

func NewHistoryRepo(db *DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) Append(ctx context.Context, entries []domain.HistoryEntry) error {
	const ins = `
        INSERT INTO rates_history(id, base, quote, rate, recorded_at, source)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING`
	q := r.db.querier(ctx)
	for _, e := range entries {
		if _, err := q.Exec(ctx, ins, e.ID, e.Pair.Base, e.Pair.Quote, e.Rate.String(), e.RecordedAt, string(e.Source)); err != nil {
			return fmt.Errorf("append history %s: %w", e.ID, err)
		}
	}
	return nil
}
