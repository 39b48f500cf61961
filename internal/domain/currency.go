package domain

import (
	"fmt"
	"sort"
	"strings"
)

type CurrencyKind string

const (
	KindFiat   CurrencyKind = "fiat"
	KindCrypto CurrencyKind = "crypto"
)

// Currency describes one entry of the fixed currency registry. Precision is
// the number of decimal places used when rounding settlement totals.
type Currency struct {
	Code      string
	Name      string
	Kind      CurrencyKind
	Precision int32

	// Fiat only.
	IssuingCountry string
	// Crypto only.
	Algorithm string
}

func (c Currency) IsCrypto() bool { return c.Kind == KindCrypto }

// Registry resolves currency codes. Unknown codes are a hard error; nothing
// is ever created on the fly.
type Registry struct {
	byCode map[string]Currency
}

func NewRegistry(currencies ...Currency) *Registry {
	r := &Registry{byCode: make(map[string]Currency, len(currencies))}
	for _, c := range currencies {
		r.byCode[strings.ToUpper(c.Code)] = c
	}
	return r
}

// DefaultRegistry returns the supported currency set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Currency{Code: "USD", Name: "US Dollar", Kind: KindFiat, Precision: 2, IssuingCountry: "United States"},
		Currency{Code: "EUR", Name: "Euro", Kind: KindFiat, Precision: 2, IssuingCountry: "Eurozone"},
		Currency{Code: "RUB", Name: "Russian Ruble", Kind: KindFiat, Precision: 2, IssuingCountry: "Russia"},
		Currency{Code: "GBP", Name: "Pound Sterling", Kind: KindFiat, Precision: 2, IssuingCountry: "United Kingdom"},
		Currency{Code: "BTC", Name: "Bitcoin", Kind: KindCrypto, Precision: 8, Algorithm: "SHA-256"},
		Currency{Code: "ETH", Name: "Ethereum", Kind: KindCrypto, Precision: 8, Algorithm: "Ethash"},
		Currency{Code: "SOL", Name: "Solana", Kind: KindCrypto, Precision: 8, Algorithm: "PoH"},
	)
}

// Resolve returns the currency for code (case-insensitive, trimmed).
func (r *Registry) Resolve(code string) (Currency, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if norm == "" {
		return Currency{}, fmt.Errorf("%w: empty code", ErrCurrencyNotFound)
	}
	c, ok := r.byCode[norm]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrCurrencyNotFound, norm)
	}
	return c, nil
}

func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// CodesByKind returns the sorted codes of one kind.
func (r *Registry) CodesByKind(kind CurrencyKind) []string {
	var codes []string
	for code, c := range r.byCode {
		if c.Kind == kind {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
