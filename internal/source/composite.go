package source

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pricewatch-go/internal/quote"
)

// Composite routes crypto symbols (suffix USDT) to one sub-source and
// everything else to another, merging their streams into a single output.
// A failing sub-stream never interrupts delivery from its sibling.
type Composite struct {
	crypto Source
	equity Source
	log    zerolog.Logger
}

func NewComposite(crypto, equity Source, log zerolog.Logger) *Composite {
	return &Composite{crypto: crypto, equity: equity, log: log}
}

// pick applies the routing predicate. The same predicate governs
// ListSymbols, GetQuote, and Stream so routing stays deterministic.
func (c *Composite) pick(symbol string) Source {
	if strings.HasSuffix(strings.ToUpper(symbol), "USDT") {
		return c.crypto
	}
	return c.equity
}

func (c *Composite) partition(symbols []string) (cryptoSyms, equitySyms []string) {
	for _, symbol := range symbols {
		if c.pick(symbol) == c.crypto {
			cryptoSyms = append(cryptoSyms, symbol)
		} else {
			equitySyms = append(equitySyms, symbol)
		}
	}
	return cryptoSyms, equitySyms
}

// ListSymbols returns the union of both catalogs.
func (c *Composite) ListSymbols(ctx context.Context) ([]quote.Symbol, error) {
	cryptoSyms, err := c.crypto.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	equitySyms, err := c.equity.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	return append(cryptoSyms, equitySyms...), nil
}

func (c *Composite) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	return c.pick(symbol).GetQuote(ctx, symbol)
}

// Stream partitions the symbol set and runs one sub-stream per non-empty
// group, all writing to the shared out channel. Per-group emission order is
// preserved; no interleaving order is guaranteed across groups.
func (c *Composite) Stream(ctx context.Context, symbols []string, out chan<- quote.Quote) error {
	cryptoSyms, equitySyms := c.partition(symbols)

	var g errgroup.Group
	run := func(sub Source, group []string, name string) {
		g.Go(func() error {
			err := sub.Stream(ctx, group, out)
			if err != nil && !errors.Is(err, context.Canceled) {
				// Sub-source failure must not stop the siblings.
				c.log.Error().Err(err).Str("group", name).Msg("sub-source stream terminated")
			}
			return nil
		})
	}
	if len(cryptoSyms) > 0 {
		run(c.crypto, cryptoSyms, "crypto")
	}
	if len(equitySyms) > 0 {
		run(c.equity, equitySyms, "equity")
	}

	_ = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
