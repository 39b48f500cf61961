package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyNotFound  = errors.New("currency not found")
	ErrNoQuotePath       = errors.New("no quote path")
	ErrStaleData         = errors.New("rate data is stale")
	ErrInvalidAmount     = errors.New("amount must be a positive number")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// InsufficientFundsError carries the balance context of a rejected debit.
// It matches ErrInsufficientFunds under errors.Is.
type InsufficientFundsError struct {
	Currency  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, requested %s %s",
		e.Available, e.Currency, e.Requested, e.Currency)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }
