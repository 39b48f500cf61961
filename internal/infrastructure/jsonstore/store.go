// Package jsonstore persists rates, history and wallets as JSON files in a
// data directory. Writes go through a temp file and rename, so a crash
// mid-write never leaves a half-written snapshot behind.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"valutatrade-hub/internal/application"
	"valutatrade-hub/internal/domain"
)

const (
	ratesFile   = "rates.json"
	historyFile = "exchange_rates.json"
	walletsFile = "wallets.json"
)

// Store owns the data directory. The typed accessors below expose it as
// the engine's rate, history and wallet stores; they share one lock.
type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonstore: create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Rates() *RateStore      { return &RateStore{s} }
func (s *Store) History() *HistoryStore { return &HistoryStore{s} }
func (s *Store) Wallets() *WalletStore  { return &WalletStore{s} }

type RateStore struct{ s *Store }
type HistoryStore struct{ s *Store }
type WalletStore struct{ s *Store }

var (
	_ application.RateStore    = (*RateStore)(nil)
	_ application.HistoryStore = (*HistoryStore)(nil)
	_ application.WalletStore  = (*WalletStore)(nil)
)

type rateEntry struct {
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    string          `json:"source"`
}

type ratesDoc struct {
	Pairs       map[string]rateEntry `json:"pairs"`
	LastRefresh time.Time            `json:"last_refresh"`
}

type historyRecord struct {
	ID           string          `json:"id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	Timestamp    time.Time       `json:"timestamp"`
	Source       string          `json:"source"`
}

type historyDoc struct {
	Records    []historyRecord `json:"records"`
	LastUpdate time.Time       `json:"last_update"`
}

type walletsDoc map[string]map[string]decimal.Decimal

// Load reads the rate snapshot. A missing file is an empty table, not an
// error.
func (r *RateStore) Load(_ context.Context) ([]domain.RateRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var doc ratesDoc
	if err := r.s.read(ratesFile, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	records := make([]domain.RateRecord, 0, len(doc.Pairs))
	for key, entry := range doc.Pairs {
		base, quote, ok := splitKey(key)
		if !ok {
			return nil, fmt.Errorf("jsonstore: malformed pair key %q", key)
		}
		records = append(records, domain.RateRecord{
			Pair:      domain.NewPair(base, quote),
			Rate:      entry.Rate,
			FetchedAt: entry.UpdatedAt,
			Source:    domain.Source(entry.Source),
		})
	}
	return records, nil
}

// Save replaces the rate snapshot with the given records.
func (r *RateStore) Save(_ context.Context, records []domain.RateRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	doc := ratesDoc{Pairs: make(map[string]rateEntry, len(records)), LastRefresh: time.Now().UTC()}
	for _, rec := range records {
		doc.Pairs[rec.Pair.Key()] = rateEntry{
			Rate:      rec.Rate,
			UpdatedAt: rec.FetchedAt,
			Source:    string(rec.Source),
		}
	}
	return r.s.write(ratesFile, doc)
}

// Append adds entries to the history file. History is append-only; existing
// records are never touched.
func (h *HistoryStore) Append(_ context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	var doc historyDoc
	if err := h.s.read(historyFile, &doc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, e := range entries {
		doc.Records = append(doc.Records, historyRecord{
			ID:           e.ID,
			FromCurrency: e.Pair.Base,
			ToCurrency:   e.Pair.Quote,
			Rate:         e.Rate,
			Timestamp:    e.RecordedAt,
			Source:       string(e.Source),
		})
	}
	doc.LastUpdate = time.Now().UTC()
	return h.s.write(historyFile, doc)
}

// Get loads the wallet for userID, or application.ErrNotFound.
func (w *WalletStore) Get(_ context.Context, userID string) (*domain.Wallet, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	var doc walletsDoc
	if err := w.s.read(walletsFile, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, application.ErrNotFound
		}
		return nil, err
	}
	balances, ok := doc[userID]
	if !ok {
		return nil, application.ErrNotFound
	}
	return domain.RestoreWallet(userID, balances)
}

// Save persists the wallet snapshot alongside the other users.
func (w *WalletStore) Save(_ context.Context, wallet *domain.Wallet) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	doc := walletsDoc{}
	if err := w.s.read(walletsFile, &doc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	doc[wallet.UserID()] = wallet.Snapshot()
	return w.s.write(walletsFile, doc)
}

func (s *Store) read(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jsonstore: parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) write(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonstore: encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("jsonstore: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("jsonstore: replace %s: %w", name, err)
	}
	return nil
}

func splitKey(key string) (base, quote string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '_' {
			return key[:i], key[i+1:], i > 0 && i < len(key)-1
		}
	}
	return "", "", false
}
