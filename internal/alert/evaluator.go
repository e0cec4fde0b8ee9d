package alert

import (
	"math"
	"sync"

	"pricewatch-go/internal/quote"
)

// Evaluator matches quotes against rules. It is the single owner of the
// per-symbol previous-price state used by pct_move rules; calls for one
// symbol must arrive in order, different symbols are independent.
type Evaluator struct {
	mu             sync.Mutex
	previousPrices map[string]float64
}

func NewEvaluator() *Evaluator {
	return &Evaluator{previousPrices: make(map[string]float64)}
}

// Evaluate returns the subset of rules that fire for the quote. The previous
// price for the symbol is updated whenever an enabled pct_move rule for it is
// seen, whether or not the rule fired; the state is per-symbol, not per-rule.
func (e *Evaluator) Evaluate(q quote.Quote, rules []Rule) []Rule {
	var triggered []Rule

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled || rule.Symbol != q.Symbol {
			continue
		}

		switch rule.Kind {
		case KindPriceAbove:
			if q.Price >= rule.Threshold {
				triggered = append(triggered, rule)
			}
		case KindPriceBelow:
			if q.Price <= rule.Threshold {
				triggered = append(triggered, rule)
			}
		case KindPctMove:
			if prev, ok := e.previousPrices[q.Symbol]; ok && prev > 0 {
				pctChange := math.Abs(q.Price-prev) / prev * 100
				if pctChange >= rule.Threshold {
					triggered = append(triggered, rule)
				}
			}
			// A first observation never fires; it only seeds the state.
			e.previousPrices[q.Symbol] = q.Price
		}
	}

	return triggered
}
