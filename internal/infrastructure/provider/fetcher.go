package provider

import (
	"context"
	"time"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"
)

// SourceClient is one upstream rate source producing normalized records.
type SourceClient interface {
	Source() domain.Source
	Fetch(ctx context.Context) ([]domain.RateRecord, error)
}

// MultiFetcher queries each source with a bounded timeout and reports
// per-source results. It never turns one source's failure into a batch
// failure; the merge layer decides what partial success means.
type MultiFetcher struct {
	Clients []SourceClient
	Timeout time.Duration
}

var _ application.RateFetcher = (*MultiFetcher)(nil)

func NewMultiFetcher(timeout time.Duration, clients ...SourceClient) *MultiFetcher {
	return &MultiFetcher{Clients: clients, Timeout: timeout}
}

func (f *MultiFetcher) FetchAll(ctx context.Context, sources []domain.Source) []application.FetchResult {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var results []application.FetchResult
	for _, c := range f.Clients {
		if len(sources) > 0 && !wanted(sources, c.Source()) {
			continue
		}
		fctx, cancel := context.WithTimeout(ctx, timeout)
		records, err := c.Fetch(fctx)
		cancel()
		results = append(results, application.FetchResult{Source: c.Source(), Records: records, Err: err})
	}
	return results
}

func wanted(sources []domain.Source, s domain.Source) bool {
	for _, want := range sources {
		if want == s {
			return true
		}
	}
	return false
}
