package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/domain"
)

// Fake serves a fixed rate set for one source; used in dev and tests when
// no upstream is configured.
type Fake struct {
	src   domain.Source
	rates map[string]string // pair string -> rate
}

var _ SourceClient = (*Fake)(nil)

func NewFakeCrypto() *Fake {
	return &Fake{
		src: domain.SourceCoinGecko,
		rates: map[string]string{
			"BTC/USD": "59000",
			"ETH/USD": "3100",
			"SOL/USD": "150",
		},
	}
}

func NewFakeFiat() *Fake {
	return &Fake{
		src: domain.SourceExchangeRateAPI,
		rates: map[string]string{
			"USD/EUR": "0.92",
			"USD/RUB": "90.5",
			"USD/GBP": "0.78",
		},
	}
}

func (f *Fake) Source() domain.Source { return f.src }

func (f *Fake) Fetch(context.Context) ([]domain.RateRecord, error) {
	now := time.Now().UTC()
	records := make([]domain.RateRecord, 0, len(f.rates))
	for pair, rate := range f.rates {
		p, _ := domain.ParsePair(pair)
		records = append(records, domain.RateRecord{
			Pair:      p,
			Rate:      decimal.RequireFromString(rate),
			FetchedAt: now,
			Source:    f.src,
		})
	}
	return records, nil
}
