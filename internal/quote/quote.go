// Package quote standardizes payloads shared between data sources and the distribution layers.
package quote

import "time"

// Quote models a single price observation for a symbol. Values are never
// mutated after creation.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Ts     time.Time `json:"ts"`
}

// Symbol describes a tradable instrument offered by a data source.
type Symbol struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name,omitempty"`
	AssetType string `json:"asset_type"`
}
