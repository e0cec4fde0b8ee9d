package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/metrics"
	"pricewatch-go/internal/quote"
)

// Synthetic generates random-walk prices with no network dependency.
type Synthetic struct {
	log      zerolog.Logger
	interval time.Duration
	catalog  []quote.Symbol

	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

// NewSynthetic seeds the generator with a small catalog of well-known symbols.
func NewSynthetic(log zerolog.Logger) *Synthetic {
	return &Synthetic{
		log:      log,
		interval: time.Second,
		catalog: []quote.Symbol{
			{Symbol: "BTCUSDT", Name: "Bitcoin", AssetType: "crypto"},
			{Symbol: "ETHUSDT", Name: "Ethereum", AssetType: "crypto"},
			{Symbol: "SOLUSDT", Name: "Solana", AssetType: "crypto"},
			{Symbol: "AAPL", Name: "Apple Inc.", AssetType: "equity"},
			{Symbol: "MSFT", Name: "Microsoft Corp.", AssetType: "equity"},
			{Symbol: "GOOGL", Name: "Alphabet Inc.", AssetType: "equity"},
		},
		prices: map[string]float64{
			"BTCUSDT": 43000.0,
			"ETHUSDT": 2500.0,
			"SOLUSDT": 100.0,
			"AAPL":    175.0,
			"MSFT":    380.0,
			"GOOGL":   140.0,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithInterval overrides the emission cadence, mostly to keep tests fast.
func (s *Synthetic) WithInterval(d time.Duration) *Synthetic {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Synthetic) ListSymbols(ctx context.Context) ([]quote.Symbol, error) {
	out := make([]quote.Symbol, len(s.catalog))
	copy(out, s.catalog)
	return out, nil
}

// GetQuote walks the symbol's price by up to 0.5% in either direction.
// Unknown symbols are seeded with a random starting price.
func (s *Synthetic) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	s.mu.Lock()
	px, ok := s.prices[symbol]
	if !ok {
		px = 10.0 + s.rng.Float64()*990.0
	}
	px *= 1 + (s.rng.Float64()*0.01 - 0.005)
	s.prices[symbol] = px
	s.mu.Unlock()

	return quote.Quote{Symbol: symbol, Price: px, Ts: time.Now().UTC()}, nil
}

// Stream emits one quote per subscribed symbol each interval until ctx is done.
func (s *Synthetic) Stream(ctx context.Context, symbols []string, out chan<- quote.Quote) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		for _, symbol := range symbols {
			q, _ := s.GetQuote(ctx, symbol)
			select {
			case out <- q:
				metrics.QuotesTotal.WithLabelValues(symbol).Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
