// Package stream glues one quote source to one subscriber: every quote is
// run through alert evaluation, triggered alerts are handed to the
// dispatcher, and the quote is forwarded if still wanted.
package stream

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/alert"
	"pricewatch-go/internal/metrics"
	"pricewatch-go/internal/notify"
	"pricewatch-go/internal/quote"
	"pricewatch-go/internal/source"
)

// RuleLookup fetches the enabled rules for a symbol, in creation order.
type RuleLookup func(symbol string) ([]alert.Rule, error)

// Distributor owns one source stream for the lifetime of one subscription
// set. It is single-use: construct, Run, discard.
type Distributor struct {
	src        source.Source
	evaluator  *alert.Evaluator
	dispatcher *notify.Dispatcher
	rules      RuleLookup
	log        zerolog.Logger
}

func NewDistributor(src source.Source, evaluator *alert.Evaluator, dispatcher *notify.Dispatcher, rules RuleLookup, log zerolog.Logger) *Distributor {
	return &Distributor{
		src:        src,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		rules:      rules,
		log:        log,
	}
}

// Run blocks pumping quotes until ctx is canceled, the stream ends, or send
// fails. It returns only after the source stream goroutine has released its
// transport, so a caller that has seen Run return may safely start a
// replacement without leaking connections.
func (d *Distributor) Run(ctx context.Context, symbols []string, inSet func(symbol string) bool, send func(q quote.Quote) error) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan quote.Quote, 256)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		err := d.src.Stream(streamCtx, symbols, out)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error().Err(err).Msg("source stream terminated")
		}
	}()
	defer func() {
		cancel()
		<-streamDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-out:
			if err := d.deliver(q, inSet, send); err != nil {
				return err
			}
		case <-streamDone:
			// The stream may have buffered quotes ahead of its return;
			// they were produced, so they still get evaluated and forwarded.
			for {
				select {
				case q := <-out:
					if err := d.deliver(q, inSet, send); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

func (d *Distributor) deliver(q quote.Quote, inSet func(symbol string) bool, send func(q quote.Quote) error) error {
	d.evaluateQuote(q)
	// A quote raced by an unsubscribe is dropped, never delivered against a
	// stale subscription.
	if !inSet(q.Symbol) {
		return nil
	}
	return send(q)
}

func (d *Distributor) evaluateQuote(q quote.Quote) {
	rules, err := d.rules(q.Symbol)
	if err != nil {
		d.log.Warn().Err(err).Str("symbol", q.Symbol).Msg("rule lookup failed")
		return
	}
	if len(rules) == 0 {
		return
	}
	for _, rule := range d.evaluator.Evaluate(q, rules) {
		metrics.AlertsTriggeredTotal.WithLabelValues(rule.Symbol, rule.Kind).Inc()
		d.dispatcher.Dispatch(rule, q)
	}
}
