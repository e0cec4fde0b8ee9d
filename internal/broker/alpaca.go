// Package broker places paper trades with Alpaca.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/metrics"
)

const defaultBaseURL = "https://paper-api.alpaca.markets"

// ErrNotConfigured is returned when no API credentials were supplied.
var ErrNotConfigured = errors.New("alpaca credentials not configured")

// Order mirrors the subset of Alpaca's order object the rest of the app
// cares about.
type Order struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	TimeInForce    string `json:"time_in_force"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	SubmittedAt    string `json:"submitted_at"`
}

type Alpaca struct {
	keyID   string
	secret  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewAlpaca(keyID, secret, baseURL string, log zerolog.Logger) *Alpaca {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Alpaca{
		keyID:   keyID,
		secret:  secret,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "alpaca").Logger(),
	}
}

func (a *Alpaca) Configured() bool { return a.keyID != "" && a.secret != "" }

// SubmitMarketOrder places a day market order. Alpaca wants qty as a string.
func (a *Alpaca) SubmitMarketOrder(ctx context.Context, symbol, side string, qty float64) (Order, error) {
	if !a.Configured() {
		return Order{}, ErrNotConfigured
	}
	body := map[string]string{
		"symbol":        symbol,
		"qty":           strconv.FormatFloat(qty, 'f', -1, 64),
		"side":          side,
		"type":          "market",
		"time_in_force": "day",
	}
	var order Order
	if err := a.do(ctx, http.MethodPost, "/v2/orders", body, &order); err != nil {
		return Order{}, err
	}
	metrics.OrdersTotal.WithLabelValues(symbol, side).Inc()
	a.log.Info().Str("symbol", symbol).Str("side", side).Str("order_id", order.ID).Msg("order submitted")
	return order, nil
}

func (a *Alpaca) GetOrder(ctx context.Context, id string) (Order, error) {
	if !a.Configured() {
		return Order{}, ErrNotConfigured
	}
	var order Order
	if err := a.do(ctx, http.MethodGet, "/v2/orders/"+id, nil, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (a *Alpaca) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("alpaca request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("alpaca %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode alpaca response: %w", err)
	}
	return nil
}
