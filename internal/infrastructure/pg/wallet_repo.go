package pg

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"
)

// WalletRepo stores one row per (user, currency) balance.
type WalletRepo struct{ db *DB }

var _ application.WalletStore = (*WalletRepo)(nil)

func NewWalletRepo(db *DB) *WalletRepo { return &WalletRepo{db: db} }

func (r *WalletRepo) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	const q = `SELECT currency, balance::text FROM wallets WHERE user_id=$1`
	rows, err := r.db.querier(ctx).Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", userID, err)
	}
	defer rows.Close()

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var currency, balanceStr string
		if err := rows.Scan(&currency, &balanceStr); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored balance %q: %w", balanceStr, err)
		}
		balances[currency] = b
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, application.ErrNotFound
	}
	return domain.RestoreWallet(userID, balances)
}

func (r *WalletRepo) Save(ctx context.Context, w *domain.Wallet) error {
	q := r.db.querier(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM wallets WHERE user_id=$1`, w.UserID()); err != nil {
		return fmt.Errorf("clear wallet %s: %w", w.UserID(), err)
	}
	const ins = `INSERT INTO wallets(user_id, currency, balance) VALUES ($1, $2, $3)`
	for currency, balance := range w.Snapshot() {
		if _, err := q.Exec(ctx, ins, w.UserID(), currency, balance.String()); err != nil {
			return fmt.Errorf("save balance %s/%s: %w", w.UserID(), currency, err)
		}
	}
	return nil
}
