package worker

import (
	"context"
	"errors"
	"time"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"

	"go.uber.org/zap"
)

// Refresher is what the worker drives; satisfied by the transaction engine.
type Refresher interface {
	RefreshRates(ctx context.Context, sources []domain.Source) (application.RefreshResult, error)
}

// RefreshWorker periodically pulls fresh rates so that interactive
// requests rarely hit a stale table.
type RefreshWorker struct {
	Engine   Refresher
	Interval time.Duration
	Log      *zap.Logger
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) error {
	w.refreshOnce(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.refreshOnce(ctx)
		}
	}
}

func (w *RefreshWorker) refreshOnce(ctx context.Context) {
	res, err := w.Engine.RefreshRates(ctx, nil)
	switch {
	case errors.Is(err, application.ErrAllSourcesFailed):
		w.Log.Error("refresh failed, all sources down", zap.Int("failed_sources", len(res.FailedSources)))
	case err != nil:
		w.Log.Error("refresh failed", zap.Error(err))
	default:
		w.Log.Info("rates refreshed",
			zap.Int("updated_pairs", len(res.UpdatedPairs)),
			zap.Int("failed_sources", len(res.FailedSources)),
		)
	}
}
