// Package source hosts the pluggable market data sources feeding the
// distribution pipeline.
package source

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/config"
	"pricewatch-go/internal/quote"
)

const (
	// KindSynthetic emits deterministic random-walk quotes (useful for tests/offline work).
	KindSynthetic = "mock"
	// KindBinance streams live trades from Binance public websockets.
	KindBinance = "binance"
	// KindPolygon polls the Polygon REST API for equity snapshots.
	KindPolygon = "polygon"
	// KindMixed routes crypto symbols to Binance and equities to Polygon.
	KindMixed = "mixed"
)

// ErrSourceUnavailable indicates a one-shot quote fetch could not complete.
// It is never papered over with a stale value.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source is the capability shared by every market data variant. Stream emits
// quotes onto out until ctx is canceled; it owns its transport and releases
// it before returning. GetQuote serves the most recently cached price when
// one exists, otherwise performs a one-shot fetch.
type Source interface {
	ListSymbols(ctx context.Context) ([]quote.Symbol, error)
	GetQuote(ctx context.Context, symbol string) (quote.Quote, error)
	Stream(ctx context.Context, symbols []string, out chan<- quote.Quote) error
}

// New constructs a source backed by the configured provider kind. Unknown
// kinds fall back to the synthetic generator.
func New(cfg config.Provider, log zerolog.Logger) Source {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindBinance:
		return NewBinance(cfg.Binance, log)
	case KindPolygon:
		return NewPolygon(cfg.Polygon, log)
	case KindMixed:
		return NewComposite(NewBinance(cfg.Binance, log), NewPolygon(cfg.Polygon, log), log)
	default:
		return NewSynthetic(log)
	}
}

// priceCache is the per-source last-price map. Reads may come from GetQuote
// callers concurrently with writes on the streaming path.
type priceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func newPriceCache() *priceCache {
	return &priceCache{prices: make(map[string]float64)}
}

func (c *priceCache) get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	px, ok := c.prices[symbol]
	return px, ok
}

func (c *priceCache) set(symbol string, price float64) {
	c.mu.Lock()
	c.prices[symbol] = price
	c.mu.Unlock()
}
