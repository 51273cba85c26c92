// Package store persists completed vault transactions in postgres. The
// in-memory ledger is authoritative at runtime; the journal exists so a
// restarted service can rebuild its state by replay.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/vaultledger/internal/vault"
)

// Store is a postgres-backed transaction journal.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the journal table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vault_transactions (
			id       BIGSERIAL PRIMARY KEY,
			seq      BIGINT      NOT NULL,
			kind     TEXT        NOT NULL,
			account  TEXT        NOT NULL,
			amount   NUMERIC(78) NOT NULL,
			recorded TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record appends one completed transaction to the journal.
func (s *Store) Record(ctx context.Context, tx vault.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vault_transactions (seq, kind, account, amount)
		 VALUES ($1, $2, $3, $4)`,
		int64(tx.Seq), tx.Kind, tx.Account, tx.Amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Replay streams every journaled transaction, oldest first, into fn.
// Feeding fn = ledger.Restore rebuilds the in-memory state.
func (s *Store) Replay(ctx context.Context, fn func(vault.Transaction) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, account, amount FROM vault_transactions ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     int64
			kind    string
			account string
			raw     string
		)
		if err := rows.Scan(&seq, &kind, &account, &raw); err != nil {
			return fmt.Errorf("failed to scan journal row: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("corrupt journal amount %q: %w", raw, err)
		}
		if err := fn(vault.Transaction{
			Seq:     uint64(seq),
			Kind:    kind,
			Account: account,
			Amount:  amount,
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}
