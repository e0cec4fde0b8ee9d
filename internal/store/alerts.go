package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pricewatch-go/internal/alert"
)

// ErrNotFound is returned when a record with the requested ID does not exist.
var ErrNotFound = errors.New("record not found")

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
}

// CreateAlert persists a new rule and returns it with a generated ID.
func (s *Store) CreateAlert(symbol, kind string, threshold float64, enabled bool) (alert.Rule, error) {
	rule := alert.Rule{
		ID:        newID("alert"),
		Symbol:    symbol,
		Kind:      kind,
		Threshold: threshold,
		Enabled:   enabled,
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO alerts (id, symbol, kind, threshold, enabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Symbol, rule.Kind, rule.Threshold, boolToInt(rule.Enabled), now, now,
	)
	if err != nil {
		return alert.Rule{}, fmt.Errorf("insert alert: %w", err)
	}
	return rule, nil
}

// GetAlert fetches one rule by ID.
func (s *Store) GetAlert(id string) (alert.Rule, error) {
	row := s.db.QueryRow(`SELECT id, symbol, kind, threshold, enabled FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

// ListAlerts returns every rule, optionally filtered by symbol.
func (s *Store) ListAlerts(symbol string) ([]alert.Rule, error) {
	query := `SELECT id, symbol, kind, threshold, enabled FROM alerts`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// EnabledAlertsBySymbol returns the enabled rules for a symbol in creation
// order. This is the read-only lookup the quote pipeline uses per quote.
func (s *Store) EnabledAlertsBySymbol(symbol string) ([]alert.Rule, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, kind, threshold, enabled FROM alerts WHERE symbol = ? AND enabled = 1 ORDER BY created_at`,
		symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("alerts by symbol: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// UpdateAlert patches enabled and/or threshold; nil fields are left alone.
func (s *Store) UpdateAlert(id string, enabled *bool, threshold *float64) (alert.Rule, error) {
	rule, err := s.GetAlert(id)
	if err != nil {
		return alert.Rule{}, err
	}
	if enabled != nil {
		rule.Enabled = *enabled
	}
	if threshold != nil {
		rule.Threshold = *threshold
	}
	_, err = s.db.Exec(
		`UPDATE alerts SET enabled = ?, threshold = ?, updated_at = ? WHERE id = ?`,
		boolToInt(rule.Enabled), rule.Threshold, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return alert.Rule{}, fmt.Errorf("update alert: %w", err)
	}
	return rule, nil
}

// DeleteAlert removes a rule; ErrNotFound if no row matched.
func (s *Store) DeleteAlert(id string) error {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAlert(row *sql.Row) (alert.Rule, error) {
	var rule alert.Rule
	var enabled int
	err := row.Scan(&rule.ID, &rule.Symbol, &rule.Kind, &rule.Threshold, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Rule{}, ErrNotFound
	}
	if err != nil {
		return alert.Rule{}, fmt.Errorf("scan alert: %w", err)
	}
	rule.Enabled = enabled != 0
	return rule, nil
}

func collectAlerts(rows *sql.Rows) ([]alert.Rule, error) {
	var out []alert.Rule
	for rows.Next() {
		var rule alert.Rule
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.Symbol, &rule.Kind, &rule.Threshold, &enabled); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rule.Enabled = enabled != 0
		out = append(out, rule)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
