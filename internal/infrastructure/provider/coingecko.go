package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/domain"
	"valutatrade-hub/internal/infrastructure/httpx"
)

const coinGeckoPricePath = "/api/v3/simple/price"

// coinIDs maps currency codes to CoinGecko asset identifiers.
var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// CoinGeckoClient fetches crypto quotes against the pivot currency from the
// CoinGecko simple-price endpoint.
type CoinGeckoClient struct {
	BaseURL string
	HTTP    *httpx.Client
	// Pivot is the quote currency, normally USD.
	Pivot   string
	Cryptos []string
}

var _ SourceClient = (*CoinGeckoClient)(nil)

func (c *CoinGeckoClient) Source() domain.Source { return domain.SourceCoinGecko }

func (c *CoinGeckoClient) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if c.BaseURL == "" {
		return nil, errors.New("coingecko: missing base url")
	}

	ids := make([]string, 0, len(c.Cryptos))
	for _, code := range c.Cryptos {
		id, ok := coinIDs[code]
		if !ok {
			id = strings.ToLower(code)
		}
		ids = append(ids, id)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("coingecko: invalid base url: %w", err)
	}
	u.Path = coinGeckoPricePath
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", strings.ToLower(c.Pivot))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("coingecko: create request: %w", err)
	}

	// {"bitcoin": {"usd": 59337.21}, ...}
	var body map[string]map[string]json.Number
	client := c.HTTP
	if client == nil {
		client = &httpx.Client{}
	}
	if err := client.DoJSON(ctx, req, &body); err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	now := time.Now().UTC()
	vs := strings.ToLower(c.Pivot)
	var records []domain.RateRecord
	for _, code := range c.Cryptos {
		id, ok := coinIDs[code]
		if !ok {
			id = strings.ToLower(code)
		}
		prices, ok := body[id]
		if !ok {
			continue
		}
		raw, ok := prices[vs]
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("coingecko: bad price for %s: %w", code, err)
		}
		records = append(records, domain.RateRecord{
			Pair:      domain.NewPair(code, c.Pivot),
			Rate:      rate,
			FetchedAt: now,
			Source:    domain.SourceCoinGecko,
		})
	}
	if len(records) == 0 {
		return nil, errors.New("coingecko: response contained no usable prices")
	}
	return records, nil
}
