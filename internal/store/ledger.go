package store

import (
	"context"
	"fmt"
	"time"
)

// Ledger actions.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

// LedgerEntry is the outcome of one synced item.
type LedgerEntry struct {
	ID          int64  `db:"id" json:"id"`
	BatchID     string `db:"batch_id" json:"batch_id"`
	Action      string `db:"action" json:"action"`
	Fingerprint string `db:"fingerprint" json:"fingerprint"`
	Title       string `db:"title" json:"title,omitempty"`
	OK          bool   `db:"ok" json:"ok"`
	Error       string `db:"error" json:"error,omitempty"`
	At          int64  `db:"at" json:"at"`
}

// Time returns At as a time.Time.
func (e LedgerEntry) Time() time.Time { return time.Unix(e.At, 0) }

// Record appends entries in one transaction.
func (d *DB) Record(ctx context.Context, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO ledger (batch_id, action, fingerprint, title, ok, error, at)
	           VALUES (:batch_id, :action, :fingerprint, :title, :ok, :error, :at)`
	for _, e := range entries {
		if _, err := tx.NamedExecContext(ctx, q, e); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit entries, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []LedgerEntry
	err := d.db.SelectContext(ctx, &out,
		`SELECT id, batch_id, action, fingerprint, title, ok, error, at
		 FROM ledger ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return out, nil
}

// ByFingerprint returns the history of one event, oldest first.
func (d *DB) ByFingerprint(ctx context.Context, fp string) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := d.db.SelectContext(ctx, &out,
		`SELECT id, batch_id, action, fingerprint, title, ok, error, at
		 FROM ledger WHERE fingerprint = ? ORDER BY id`, fp)
	if err != nil {
		return nil, fmt.Errorf("list ledger for %s: %w", fp, err)
	}
	return out, nil
}
