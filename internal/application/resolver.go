package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/domain"
)

// Refresher is the injected refresh collaborator: it runs one bounded
// fetch -> merge -> table update cycle. Who implements it (the engine) and
// how the fetch happens is not the resolver's concern.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ResolvedRate is the answer to "what is 1 unit of Base worth in Quote".
type ResolvedRate struct {
	Pair      domain.Pair
	Rate      decimal.Decimal
	AsOf      time.Time
	Stale     bool
	Refreshed bool
}

// ConversionResolver resolves currency-pair conversions against the rate
// table: direct quote, inverted quote, or a two-hop path through the pivot
// currency. At most one refresh cycle is triggered per call, no matter how
// many hops the resolution takes.
type ConversionResolver struct {
	table     *domain.RateTable
	refresher Refresher
	clock     Clock
	ttl       time.Duration
	pivot     string
}

type ResolverOption func(*ConversionResolver)

func WithResolverClock(c Clock) ResolverOption {
	return func(r *ConversionResolver) { r.clock = c }
}

func NewConversionResolver(table *domain.RateTable, refresher Refresher, ttl time.Duration, pivot string, opts ...ResolverOption) *ConversionResolver {
	r := &ConversionResolver{table: table, refresher: refresher, ttl: ttl, pivot: pivot}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = realClock{}
	}
	return r
}

// Rate resolves the from->to conversion. With allowRefresh, a stale or
// missing quote triggers the refresh collaborator once before falling back
// to inversion and the pivot path. Stale data with a failed refresh is
// still returned, flagged, so the caller decides whether to act on it.
func (r *ConversionResolver) Rate(ctx context.Context, from, to string, allowRefresh bool) (ResolvedRate, error) {
	now := r.clock.Now()
	if from == to {
		return ResolvedRate{
			Pair: domain.NewPair(from, to),
			Rate: decimal.New(1, 0),
			AsOf: now,
		}, nil
	}
	budget := allowRefresh
	return r.resolve(ctx, domain.NewPair(from, to), now, &budget, true)
}

func (r *ConversionResolver) resolve(ctx context.Context, p domain.Pair, now time.Time, refreshBudget *bool, allowPivot bool) (ResolvedRate, error) {
	rec, ok := r.table.Get(p)
	refreshed := false

	if (!ok || r.isStale(rec, now)) && *refreshBudget {
		*refreshBudget = false
		if err := r.refresher.Refresh(ctx); err == nil {
			refreshed = true
		}
		rec, ok = r.table.Get(p)
	}

	if ok {
		return ResolvedRate{
			Pair:      p,
			Rate:      rec.Rate,
			AsOf:      rec.FetchedAt,
			Stale:     r.isStale(rec, now),
			Refreshed: refreshed,
		}, nil
	}

	if inv, invOK := r.table.Invert(p); invOK {
		return ResolvedRate{
			Pair:      p,
			Rate:      inv.Rate,
			AsOf:      inv.FetchedAt,
			Stale:     r.isStale(inv, now),
			Refreshed: refreshed,
		}, nil
	}

	if allowPivot && p.Base != r.pivot && p.Quote != r.pivot {
		left, errL := r.resolve(ctx, domain.NewPair(p.Base, r.pivot), now, refreshBudget, false)
		if errL != nil {
			return ResolvedRate{}, fmt.Errorf("%w: %s", domain.ErrNoQuotePath, p)
		}
		right, errR := r.resolve(ctx, domain.NewPair(r.pivot, p.Quote), now, refreshBudget, false)
		if errR != nil {
			return ResolvedRate{}, fmt.Errorf("%w: %s", domain.ErrNoQuotePath, p)
		}
		asOf := left.AsOf
		if right.AsOf.Before(asOf) {
			asOf = right.AsOf
		}
		return ResolvedRate{
			Pair:      p,
			Rate:      left.Rate.Mul(right.Rate),
			AsOf:      asOf,
			Stale:     left.Stale || right.Stale,
			Refreshed: refreshed || left.Refreshed || right.Refreshed,
		}, nil
	}

	return ResolvedRate{}, fmt.Errorf("%w: %s", domain.ErrNoQuotePath, p)
}

func (r *ConversionResolver) isStale(rec domain.RateRecord, now time.Time) bool {
	return now.Sub(rec.FetchedAt) > r.ttl
}
