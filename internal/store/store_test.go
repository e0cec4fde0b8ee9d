package store

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"pricewatch-go/internal/alert"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAlertCRUD(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreateAlert("BTCUSDT", alert.KindPriceAbove, 50000, true)
	if err != nil {
		t.Fatalf("CreateAlert returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated alert ID")
	}

	got, err := s.GetAlert(created.ID)
	if err != nil {
		t.Fatalf("GetAlert returned error: %v", err)
	}
	if got != created {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, created)
	}

	enabled := false
	threshold := 45000.0
	updated, err := s.UpdateAlert(created.ID, &enabled, &threshold)
	if err != nil {
		t.Fatalf("UpdateAlert returned error: %v", err)
	}
	if updated.Enabled || updated.Threshold != 45000 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := s.DeleteAlert(created.ID); err != nil {
		t.Fatalf("DeleteAlert returned error: %v", err)
	}
	if _, err := s.GetAlert(created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestEnabledAlertsBySymbol(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateAlert("BTCUSDT", alert.KindPriceAbove, 50000, true); err != nil {
		t.Fatalf("CreateAlert returned error: %v", err)
	}
	if _, err := s.CreateAlert("BTCUSDT", alert.KindPriceBelow, 40000, false); err != nil {
		t.Fatalf("CreateAlert returned error: %v", err)
	}
	if _, err := s.CreateAlert("ETHUSDT", alert.KindPctMove, 2, true); err != nil {
		t.Fatalf("CreateAlert returned error: %v", err)
	}

	rules, err := s.EnabledAlertsBySymbol("BTCUSDT")
	if err != nil {
		t.Fatalf("EnabledAlertsBySymbol returned error: %v", err)
	}
	if len(rules) != 1 || rules[0].Kind != alert.KindPriceAbove {
		t.Fatalf("expected only the enabled BTCUSDT rule, got %+v", rules)
	}
}

func TestJournalEntryUpdatesPosition(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateEntry("AAPL", SideBuy, 10, 100, "", time.Time{}); err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	if _, err := s.CreateEntry("AAPL", SideBuy, 10, 200, "", time.Time{}); err != nil {
		t.Fatalf("second buy returned error: %v", err)
	}

	pos, err := s.GetPosition("AAPL")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}
	if pos.Qty != 20 || pos.AvgPrice != 150 {
		t.Fatalf("expected 20 @ 150 after averaging, got %+v", pos)
	}

	if _, err := s.CreateEntry("AAPL", SideSell, 5, 180, "", time.Time{}); err != nil {
		t.Fatalf("sell returned error: %v", err)
	}
	pos, err = s.GetPosition("AAPL")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}
	if pos.Qty != 15 || math.Abs(pos.RealizedPnL-150) > 1e-9 {
		t.Fatalf("expected qty 15 and realized 150, got %+v", pos)
	}
}

func TestSellCapsAtHeldQuantityAndResetsAvg(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateEntry("TSLA", SideBuy, 5, 200, "", time.Time{}); err != nil {
		t.Fatalf("buy returned error: %v", err)
	}
	if _, err := s.CreateEntry("TSLA", SideSell, 50, 250, "", time.Time{}); err != nil {
		t.Fatalf("oversized sell returned error: %v", err)
	}

	pos, err := s.GetPosition("TSLA")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}
	if pos.Qty != 0 || pos.AvgPrice != 0 {
		t.Fatalf("expected flat position with reset avg, got %+v", pos)
	}
	if math.Abs(pos.RealizedPnL-250) > 1e-9 {
		t.Fatalf("expected realized 250 on 5 shares, got %f", pos.RealizedPnL)
	}
}

func TestSellWithoutPositionFails(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateEntry("NVDA", SideSell, 1, 500, "", time.Time{}); err == nil {
		t.Fatal("expected error selling with no position")
	}
	// The failed trade must not have left a journal row behind.
	entries, err := s.ListEntries("NVDA", 0)
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no journal entries, got %d", len(entries))
	}
}

func TestListEntriesMostRecentFirst(t *testing.T) {
	s := openTestStore(t)

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	if _, err := s.CreateEntry("AAPL", SideBuy, 1, 100, "first", older); err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if _, err := s.CreateEntry("AAPL", SideBuy, 1, 110, "second", newer); err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}

	entries, err := s.ListEntries("AAPL", 10)
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Notes != "second" {
		t.Fatalf("expected most recent first, got %+v", entries)
	}
}

func TestListOpenPositionsSkipsFlat(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateEntry("AAPL", SideBuy, 1, 100, "", time.Time{}); err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if _, err := s.CreateEntry("MSFT", SideBuy, 2, 300, "", time.Time{}); err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if _, err := s.CreateEntry("AAPL", SideSell, 1, 120, "", time.Time{}); err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}

	positions, err := s.ListOpenPositions()
	if err != nil {
		t.Fatalf("ListOpenPositions returned error: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "MSFT" {
		t.Fatalf("expected only MSFT open, got %+v", positions)
	}
}
