package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"
	httpserver "valutatrade-hub/internal/infrastructure/http"
	"valutatrade-hub/internal/infrastructure/jsonstore"
	"valutatrade-hub/internal/infrastructure/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	store, err := jsonstore.New(t.TempDir())
	require.NoError(t, err)

	registry := domain.DefaultRegistry()
	engine := application.NewTransactionEngine(
		registry,
		domain.NewRateTable(),
		application.NewSourceMerger(registry),
		provider.NewMultiFetcher(time.Second, provider.NewFakeCrypto(), provider.NewFakeFiat()),
		store.Wallets(),
		store.Rates(),
		store.History(),
		application.EngineConfig{
			TTL:             300 * time.Second,
			Pivot:           "USD",
			Settlement:      "USD",
			StalePolicy:     application.StaleWarn,
			StartingBalance: decimal.RequireFromString("1000"),
		},
	)
	return httpserver.NewRouter(httpserver.NewServer(engine, nil))
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestGetRate(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/rates/BTC/USD", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Pair    string `json:"pair"`
		Rate    string `json:"rate"`
		IsStale bool   `json:"is_stale"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "BTC/USD", resp.Pair)
	require.Equal(t, "59000", resp.Rate)
	require.False(t, resp.IsStale)
}

func TestGetRate_UnknownCurrency(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/rates/BTC/XYZ", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRefresh(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		UpdatedPairs []string `json:"updated_pairs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.UpdatedPairs, 6)
	require.Contains(t, resp.UpdatedPairs, "BTC/USD")
	require.Contains(t, resp.UpdatedPairs, "USD/EUR")
}

func TestRefresh_SourceFilter(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/refresh?source=CoinGecko", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		UpdatedPairs []string `json:"updated_pairs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.UpdatedPairs, 3)
	require.Contains(t, resp.UpdatedPairs, "BTC/USD")
	require.NotContains(t, resp.UpdatedPairs, "USD/EUR")

	// A repeated source param selects a subset of sources.
	rr = doRequest(t, h, http.MethodPost, "/refresh?source=CoinGecko&source=ExchangeRate-API", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp.UpdatedPairs = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.UpdatedPairs, 6)
}

func TestBuyAndPortfolio(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/users/alice/buy", `{"currency":"BTC","amount":"0.01"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var trade struct {
		Action   string `json:"action"`
		Currency string `json:"currency"`
		Total    string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &trade))
	require.Equal(t, "buy", trade.Action)
	require.Equal(t, "BTC", trade.Currency)
	require.Equal(t, "590", trade.Total)

	rr = doRequest(t, h, http.MethodGet, "/users/alice/portfolio?base=USD", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var p struct {
		Base     string `json:"base"`
		Total    string `json:"total"`
		Holdings []struct {
			Currency string `json:"currency"`
			Amount   string `json:"amount"`
			Priced   bool   `json:"priced"`
		} `json:"holdings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.Equal(t, "USD", p.Base)
	require.Equal(t, "1000", p.Total)
	require.Len(t, p.Holdings, 2)
}

func TestBuy_BadRequests(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/users/alice/buy", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPost, "/users/alice/buy", `{"amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPost, "/users/alice/buy", `{"currency":"BTC","amount":"-1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPost, "/users/alice/buy", `{"currency":"XYZ","amount":"1"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSell_InsufficientFunds(t *testing.T) {
	h := newTestHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/users/alice/sell", `{"currency":"BTC","amount":"1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Contains(t, resp.Error, "insufficient funds")
}

func TestRequestIDPropagated(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))

	rr = doRequest(t, h, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
