package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Server struct {
	engine *application.TransactionEngine
	ping   func(ctx context.Context) error
}

func NewServer(engine *application.TransactionEngine, ping func(ctx context.Context) error) *Server {
	return &Server{engine: engine, ping: ping}
}

type rateResponse struct {
	Pair    string    `json:"pair"`
	Rate    string    `json:"rate"`
	IsStale bool      `json:"is_stale"`
	AsOf    time.Time `json:"as_of"`
}

type refreshResponse struct {
	UpdatedPairs  []string        `json:"updated_pairs"`
	FailedSources []sourceFailure `json:"failed_sources,omitempty"`
}

type sourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

type tradeRequest struct {
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	Settlement string          `json:"settlement,omitempty"`
}

type tradeResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	Currency   string    `json:"currency"`
	Amount     string    `json:"amount"`
	Rate       string    `json:"rate"`
	Total      string    `json:"total"`
	Settlement string    `json:"settlement"`
	IsStale    bool      `json:"is_stale,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

type holdingResponse struct {
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	ValueInBase string `json:"value_in_base,omitempty"`
	Priced      bool   `json:"priced"`
}

type portfolioResponse struct {
	UserID   string            `json:"user_id"`
	Base     string            `json:"base"`
	Holdings []holdingResponse `json:"holdings"`
	Total    string            `json:"total"`
}

func (s *Server) getRate(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "base")
	to := chi.URLParam(r, "quote")
	info, err := s.engine.GetRate(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{
		Pair:    info.Pair.String(),
		Rate:    info.Rate.String(),
		IsStale: info.IsStale,
		AsOf:    info.AsOf,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var sources []domain.Source
	for _, raw := range r.URL.Query()["source"] {
		if raw != "" {
			sources = append(sources, domain.Source(raw))
		}
	}
	res, err := s.engine.RefreshRates(r.Context(), sources)
	if err != nil && !errors.Is(err, application.ErrAllSourcesFailed) {
		writeDomainError(w, err)
		return
	}
	resp := refreshResponse{UpdatedPairs: res.UpdatedPairs}
	for _, f := range res.FailedSources {
		resp.FailedSources = append(resp.FailedSources, sourceFailure{Source: string(f.Source), Reason: f.Reason})
	}
	status := http.StatusOK
	if errors.Is(err, application.ErrAllSourcesFailed) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) buy(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, s.engine.Buy)
}

func (s *Server) sell(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, s.engine.Sell)
}

func (s *Server) trade(w http.ResponseWriter, r *http.Request, do func(context.Context, application.TradeRequest) (application.TransactionResult, error)) {
	var body tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Currency == "" {
		writeError(w, http.StatusBadRequest, "currency is required")
		return
	}
	req := application.TradeRequest{
		UserID:         chi.URLParam(r, "id"),
		Currency:       body.Currency,
		Amount:         body.Amount,
		Settlement:     body.Settlement,
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
	}
	res, err := do(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeResponse{
		ID:         res.ID,
		UserID:     res.UserID,
		Action:     res.Action,
		Currency:   res.Currency,
		Amount:     res.Amount.String(),
		Rate:       res.Rate.String(),
		Total:      res.Total.String(),
		Settlement: res.Settlement,
		IsStale:    res.IsStale,
		ExecutedAt: res.ExecutedAt,
	})
}

func (s *Server) portfolio(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
	}
	p, err := s.engine.PortfolioValue(r.Context(), chi.URLParam(r, "id"), base)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := portfolioResponse{
		UserID:   p.UserID,
		Base:     p.Base,
		Holdings: make([]holdingResponse, 0, len(p.Holdings)),
		Total:    p.Total.String(),
	}
	for _, h := range p.Holdings {
		hr := holdingResponse{Currency: h.Currency, Amount: h.Amount.String(), Priced: h.Priced}
		if h.Priced {
			hr.ValueInBase = h.ValueInBase.String()
		}
		resp.Holdings = append(resp.Holdings, hr)
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCurrencyNotFound),
		errors.Is(err, domain.ErrNoQuotePath),
		errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, application.ErrDuplicateRequest),
		errors.Is(err, domain.ErrStaleData):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrAllSourcesFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
