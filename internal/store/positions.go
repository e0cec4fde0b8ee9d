package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Position is the average-cost view of all journal entries for a symbol.
type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	AvgPrice    float64 `json:"avg_price"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// applyTrade folds one journal entry into the symbol's position inside the
// caller's transaction. Buys reweight the average cost; sells realize
// (price − avg) × qty against the held quantity and reset the average when
// the position goes flat. Selling with nothing held is an error.
func applyTrade(tx *sql.Tx, entry Entry) error {
	var pos Position
	row := tx.QueryRow(`SELECT symbol, qty, avg_price, realized_pnl FROM positions WHERE symbol = ?`, entry.Symbol)
	err := row.Scan(&pos.Symbol, &pos.Qty, &pos.AvgPrice, &pos.RealizedPnL)
	if errors.Is(err, sql.ErrNoRows) {
		pos = Position{Symbol: entry.Symbol}
	} else if err != nil {
		return fmt.Errorf("scan position: %w", err)
	}

	switch entry.Side {
	case SideBuy:
		newQty := pos.Qty + entry.Qty
		if newQty > 0 {
			totalCost := pos.Qty*pos.AvgPrice + entry.Qty*entry.Price
			pos.AvgPrice = totalCost / newQty
			pos.Qty = newQty
		}
	case SideSell:
		if pos.Qty <= 0 {
			return fmt.Errorf("cannot sell %s: no position", entry.Symbol)
		}
		sellQty := entry.Qty
		if sellQty > pos.Qty {
			sellQty = pos.Qty
		}
		pos.RealizedPnL += sellQty * (entry.Price - pos.AvgPrice)
		pos.Qty -= sellQty
		if pos.Qty == 0 {
			pos.AvgPrice = 0
		}
	}

	_, err = tx.Exec(
		`INSERT INTO positions (symbol, qty, avg_price, realized_pnl, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET qty = excluded.qty, avg_price = excluded.avg_price,
		 realized_pnl = excluded.realized_pnl, updated_at = excluded.updated_at`,
		pos.Symbol, pos.Qty, pos.AvgPrice, pos.RealizedPnL, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// GetPosition returns the position for a symbol, ErrNotFound when none exists.
func (s *Store) GetPosition(symbol string) (Position, error) {
	var pos Position
	row := s.db.QueryRow(`SELECT symbol, qty, avg_price, realized_pnl FROM positions WHERE symbol = ?`, symbol)
	err := row.Scan(&pos.Symbol, &pos.Qty, &pos.AvgPrice, &pos.RealizedPnL)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("scan position: %w", err)
	}
	return pos, nil
}

// ListOpenPositions returns every position with a non-zero quantity.
func (s *Store) ListOpenPositions() ([]Position, error) {
	rows, err := s.db.Query(`SELECT symbol, qty, avg_price, realized_pnl FROM positions WHERE qty != 0 ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.Symbol, &pos.Qty, &pos.AvgPrice, &pos.RealizedPnL); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}
