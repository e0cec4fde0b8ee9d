// Package alert owns threshold rules, their evaluation against live quotes,
// and their persistence.
package alert

// Rule kinds understood by the evaluator. Anything else is ignored.
const (
	KindPriceAbove = "price_above"
	KindPriceBelow = "price_below"
	KindPctMove    = "pct_move"
)

// Rule is a persisted alert condition evaluated per incoming quote.
type Rule struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Kind      string  `json:"kind"`
	Threshold float64 `json:"threshold"`
	Enabled   bool    `json:"enabled"`
}

// ValidKind reports whether kind names a known rule kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindPriceAbove, KindPriceBelow, KindPctMove:
		return true
	}
	return false
}
