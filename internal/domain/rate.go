package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies the upstream a rate was fetched from.
type Source string

const (
	SourceCoinGecko       Source = "CoinGecko"
	SourceExchangeRateAPI Source = "ExchangeRate-API"
)

// RateRecord is one normalized quote: 1 unit of Pair.Base costs Rate units
// of Pair.Quote.
type RateRecord struct {
	Pair      Pair
	Rate      decimal.Decimal
	FetchedAt time.Time
	Source    Source
}

// Validate rejects records the table must never hold.
func (r RateRecord) Validate() error {
	if r.Pair.Base == "" || r.Pair.Quote == "" {
		return fmt.Errorf("rate record: incomplete pair %q", r.Pair)
	}
	if r.Pair.Base == r.Pair.Quote {
		return fmt.Errorf("rate record: identical base and quote %q", r.Pair.Base)
	}
	if !r.Rate.IsPositive() {
		return fmt.Errorf("rate record %s: non-positive rate %s", r.Pair, r.Rate)
	}
	if r.FetchedAt.IsZero() {
		return fmt.Errorf("rate record %s: zero fetch time", r.Pair)
	}
	return nil
}
