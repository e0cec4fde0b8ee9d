package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Entry is one trade-journal record.
type Entry struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Side   string    `json:"side"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`
	Notes  string    `json:"notes,omitempty"`
	Ts     time.Time `json:"ts"`
}

// CreateEntry persists a journal entry and folds it into the position for
// its symbol. The entry and position move together or not at all.
func (s *Store) CreateEntry(symbol, side string, qty, price float64, notes string, ts time.Time) (Entry, error) {
	if side != SideBuy && side != SideSell {
		return Entry{}, fmt.Errorf("invalid side %q", side)
	}
	if qty <= 0 {
		return Entry{}, errors.New("quantity must be positive")
	}
	if price <= 0 {
		return Entry{}, errors.New("price must be positive")
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	entry := Entry{
		ID:     newID("journal"),
		Symbol: symbol,
		Side:   side,
		Qty:    qty,
		Price:  price,
		Notes:  notes,
		Ts:     ts,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := applyTrade(tx, entry); err != nil {
		return Entry{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.Exec(
		`INSERT INTO journal (id, symbol, side, qty, price, notes, ts, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Symbol, entry.Side, entry.Qty, entry.Price, entry.Notes, entry.Ts.Format(time.RFC3339Nano), now,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit journal entry: %w", err)
	}
	return entry, nil
}

// GetEntry fetches one journal entry by ID.
func (s *Store) GetEntry(id string) (Entry, error) {
	row := s.db.QueryRow(`SELECT id, symbol, side, qty, price, notes, ts FROM journal WHERE id = ?`, id)
	var entry Entry
	var ts string
	err := row.Scan(&entry.ID, &entry.Symbol, &entry.Side, &entry.Qty, &entry.Price, &entry.Notes, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	entry.Ts, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Entry{}, fmt.Errorf("parse journal ts: %w", err)
	}
	return entry, nil
}

// ListEntries returns entries most recent first, optionally filtered by
// symbol, capped at limit (default 100).
func (s *Store) ListEntries(symbol string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, symbol, side, qty, price, notes, ts FROM journal`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var ts string
		if err := rows.Scan(&entry.ID, &entry.Symbol, &entry.Side, &entry.Qty, &entry.Price, &entry.Notes, &ts); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Ts, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse journal ts: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteEntry removes a journal entry. Positions are not rewound; the
// journal is a record, not an event log to replay.
func (s *Store) DeleteEntry(id string) error {
	res, err := s.db.Exec(`DELETE FROM journal WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
