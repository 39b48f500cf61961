package domain

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Wallet holds per-currency balances for one user. Balances are never
// negative. All mutating methods take the wallet lock, and ApplyTrade runs
// its debit and credit under a single lock acquisition so two concurrent
// trades cannot interleave.
type Wallet struct {
	mu       sync.Mutex
	userID   string
	balances map[string]decimal.Decimal
}

func NewWallet(userID string) *Wallet {
	return &Wallet{userID: userID, balances: make(map[string]decimal.Decimal)}
}

// RestoreWallet rebuilds a wallet from a persisted snapshot. A negative
// balance in the snapshot means corrupted storage and is rejected.
func RestoreWallet(userID string, balances map[string]decimal.Decimal) (*Wallet, error) {
	w := NewWallet(userID)
	for code, b := range balances {
		if b.IsNegative() {
			return nil, fmt.Errorf("wallet %s: negative stored balance %s %s", userID, b, code)
		}
		if !b.IsZero() {
			w.balances[code] = b
		}
	}
	return w, nil
}

func (w *Wallet) UserID() string { return w.userID }

// BalanceOf returns the balance for code, zero if never funded.
func (w *Wallet) BalanceOf(code string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[code]
}

func (w *Wallet) Credit(code string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	w.mu.Lock()
	w.balances[code] = w.balances[code].Add(amount)
	w.mu.Unlock()
	return nil
}

// Debit withdraws amount from code. The balance check and the mutation run
// under one lock acquisition; on failure the wallet is unchanged.
func (w *Wallet) Debit(code string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.debitLocked(code, amount)
}

func (w *Wallet) debitLocked(code string, amount decimal.Decimal) error {
	have := w.balances[code]
	if amount.GreaterThan(have) {
		return &InsufficientFundsError{Currency: code, Available: have, Requested: amount}
	}
	w.balances[code] = have.Sub(amount)
	return nil
}

// ApplyTrade debits one currency and credits another atomically. Either
// both legs apply or neither does.
func (w *Wallet) ApplyTrade(debitCode string, debitAmount decimal.Decimal, creditCode string, creditAmount decimal.Decimal) error {
	if !debitAmount.IsPositive() || !creditAmount.IsPositive() {
		return ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.debitLocked(debitCode, debitAmount); err != nil {
		return err
	}
	w.balances[creditCode] = w.balances[creditCode].Add(creditAmount)
	return nil
}

// Snapshot returns a copy of the non-zero balances.
func (w *Wallet) Snapshot() map[string]decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(w.balances))
	for code, b := range w.balances {
		if !b.IsZero() {
			out[code] = b
		}
	}
	return out
}
