package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/domain"
	"valutatrade-hub/internal/infrastructure/httpx"
)

// ExchangeRateAPIClient fetches fiat quotes from ExchangeRate-API. Quotes
// come back relative to the base currency, so each record is a
// base->fiat pair (1 USD = rate units of fiat).
type ExchangeRateAPIClient struct {
	BaseURL string
	APIKey  string
	HTTP    *httpx.Client
	// Base is the currency the upstream quotes against, normally USD.
	Base  string
	Fiats []string
}

var _ SourceClient = (*ExchangeRateAPIClient)(nil)

type eraLatestResp struct {
	Result    string                 `json:"result"`
	ErrorType string                 `json:"error-type"`
	BaseCode  string                 `json:"base_code"`
	Rates     map[string]json.Number `json:"conversion_rates"`
}

func (c *ExchangeRateAPIClient) Source() domain.Source { return domain.SourceExchangeRateAPI }

func (c *ExchangeRateAPIClient) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if c.BaseURL == "" || c.APIKey == "" {
		return nil, errors.New("exchangerate-api: missing configuration")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("exchangerate-api: invalid base url: %w", err)
	}
	u.Path = fmt.Sprintf("/v6/%s/latest/%s", c.APIKey, c.Base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("exchangerate-api: create request: %w", err)
	}

	var body eraLatestResp
	client := c.HTTP
	if client == nil {
		client = &httpx.Client{}
	}
	if err := client.DoJSON(ctx, req, &body); err != nil {
		return nil, fmt.Errorf("exchangerate-api: %w", err)
	}
	if body.Result != "success" {
		if body.ErrorType != "" {
			return nil, fmt.Errorf("exchangerate-api: %s", body.ErrorType)
		}
		return nil, errors.New("exchangerate-api: unsuccessful response")
	}

	base := c.Base
	if body.BaseCode != "" {
		base = body.BaseCode
	}
	// FetchedAt is the moment we observed the quote. The upstream's own
	// last-update timestamp moves on a daily cadence and would make every
	// record older than the freshness window from the start.
	fetchedAt := time.Now().UTC()

	var records []domain.RateRecord
	for _, fiat := range c.Fiats {
		raw, ok := body.Rates[fiat]
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("exchangerate-api: bad rate for %s: %w", fiat, err)
		}
		records = append(records, domain.RateRecord{
			Pair:      domain.NewPair(base, fiat),
			Rate:      rate,
			FetchedAt: fetchedAt,
			Source:    domain.SourceExchangeRateAPI,
		})
	}
	if len(records) == 0 {
		return nil, errors.New("exchangerate-api: response contained no usable rates")
	}
	return records, nil
}
