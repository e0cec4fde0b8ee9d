package source

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/quote"
)

func TestSyntheticStreamEmitsQuotes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewSynthetic(zerolog.Nop()).WithInterval(10 * time.Millisecond)
	out := make(chan quote.Quote, 1)

	go func() {
		_ = src.Stream(ctx, []string{"BTCUSDT"}, out)
	}()

	select {
	case q := <-out:
		if q.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected symbol %s", q.Symbol)
		}
		if q.Price <= 0 {
			t.Fatalf("expected positive price, got %f", q.Price)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for quote")
	}
}

func TestSyntheticGetQuoteWalksPrice(t *testing.T) {
	src := NewSynthetic(zerolog.Nop())

	first, err := src.GetQuote(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}
	second, err := src.GetQuote(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}

	change := math.Abs(second.Price-first.Price) / first.Price
	if change > 0.006 {
		t.Fatalf("walk step too large: %f", change)
	}
}

func TestSyntheticGetQuoteSeedsUnknownSymbol(t *testing.T) {
	src := NewSynthetic(zerolog.Nop())

	q, err := src.GetQuote(context.Background(), "NEWCOIN")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}
	if q.Price <= 0 {
		t.Fatalf("expected seeded positive price, got %f", q.Price)
	}
}
