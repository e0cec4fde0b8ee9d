package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pricewatch-go/internal/config"
	"pricewatch-go/internal/metrics"
	"pricewatch-go/internal/quote"
)

const defaultPolygonBaseURL = "https://api.polygon.io"

// Polygon turns the rate-limited Polygon REST API into a stream by cycling
// through the subscribed symbols with a minimum inter-request delay.
type Polygon struct {
	apiKey        string
	baseURL       string
	cycleInterval time.Duration
	limiter       *rate.Limiter
	client        *http.Client
	log           zerolog.Logger
	catalog       []quote.Symbol
	cache         *priceCache
}

type polygonLastTradeResponse struct {
	Status  string `json:"status"`
	Results *struct {
		Price     float64 `json:"p"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

type polygonSnapshotResponse struct {
	Status string `json:"status"`
	Ticker *struct {
		Day struct {
			Close float64 `json:"c"`
		} `json:"day"`
	} `json:"ticker"`
}

// NewPolygon constructs the polling source. The request key is required for
// any upstream call; without it GetQuote fails and Stream stays idle.
func NewPolygon(cfg config.Polygon, log zerolog.Logger) *Polygon {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPolygonBaseURL
	}
	minInterval := time.Duration(cfg.MinRequestInterval)
	if minInterval <= 0 {
		minInterval = 3 * time.Second
	}
	cycleInterval := time.Duration(cfg.CycleInterval)
	if cycleInterval <= 0 {
		cycleInterval = time.Minute
	}
	return &Polygon{
		apiKey:        cfg.RequestKey,
		baseURL:       baseURL,
		cycleInterval: cycleInterval,
		limiter:       rate.NewLimiter(rate.Every(minInterval), 1),
		client:        &http.Client{Timeout: 10 * time.Second},
		log:           log,
		catalog: []quote.Symbol{
			{Symbol: "AAPL", Name: "Apple Inc.", AssetType: "equity"},
			{Symbol: "MSFT", Name: "Microsoft Corp.", AssetType: "equity"},
			{Symbol: "GOOGL", Name: "Alphabet Inc.", AssetType: "equity"},
			{Symbol: "AMZN", Name: "Amazon.com Inc.", AssetType: "equity"},
			{Symbol: "TSLA", Name: "Tesla Inc.", AssetType: "equity"},
			{Symbol: "NVDA", Name: "NVIDIA Corp.", AssetType: "equity"},
		},
		cache: newPriceCache(),
	}
}

func (p *Polygon) configured() bool { return p.apiKey != "" }

func (p *Polygon) ListSymbols(ctx context.Context) ([]quote.Symbol, error) {
	out := make([]quote.Symbol, len(p.catalog))
	copy(out, p.catalog)
	return out, nil
}

// GetQuote serves the cache when possible; otherwise it fetches the last
// trade, falling back to the daily snapshot endpoint.
func (p *Polygon) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	if px, ok := p.cache.get(symbol); ok {
		return quote.Quote{Symbol: symbol, Price: px, Ts: time.Now().UTC()}, nil
	}
	if !p.configured() {
		return quote.Quote{}, fmt.Errorf("%w: polygon request key not configured", ErrSourceUnavailable)
	}

	q, err := p.fetchLastTrade(ctx, symbol)
	if err == nil {
		p.cache.set(symbol, q.Price)
		return q, nil
	}

	q, snapErr := p.fetchSnapshot(ctx, symbol)
	if snapErr != nil {
		return quote.Quote{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, errors.Join(err, snapErr))
	}
	p.cache.set(symbol, q.Price)
	return q, nil
}

// Stream cycles through the subscribed symbols, one request per symbol per
// cycle, spacing requests via the limiter and sleeping the cycle interval
// after a full pass. Per-symbol failures are logged and skipped.
func (p *Polygon) Stream(ctx context.Context, symbols []string, out chan<- quote.Quote) error {
	for {
		for _, symbol := range symbols {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
			q, err := p.GetQuote(ctx, symbol)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.log.Warn().Err(err).Str("symbol", symbol).Msg("polygon fetch failed, skipping symbol")
				continue
			}
			// Keep the cache fresh even when GetQuote served a cached value.
			p.cache.set(symbol, q.Price)
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
		case <-time.After(p.cycleInterval):
		}
	}
}

func (p *Polygon) fetchLastTrade(ctx context.Context, symbol string) (quote.Quote, error) {
	url := fmt.Sprintf("%s/v2/last/trade/%s?apikey=%s", p.baseURL, symbol, p.apiKey)
	var payload polygonLastTradeResponse
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return quote.Quote{}, err
	}
	if payload.Status != "OK" || payload.Results == nil || payload.Results.Price <= 0 {
		return quote.Quote{}, fmt.Errorf("no last trade for %s", symbol)
	}
	return quote.Quote{
		Symbol: symbol,
		Price:  payload.Results.Price,
		Ts:     time.UnixMilli(payload.Results.Timestamp).UTC(),
	}, nil
}

func (p *Polygon) fetchSnapshot(ctx context.Context, symbol string) (quote.Quote, error) {
	url := fmt.Sprintf("%s/v2/snapshot/locale/us/markets/stocks/tickers/%s?apikey=%s", p.baseURL, symbol, p.apiKey)
	var payload polygonSnapshotResponse
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return quote.Quote{}, err
	}
	if payload.Status != "OK" || payload.Ticker == nil || payload.Ticker.Day.Close <= 0 {
		return quote.Quote{}, fmt.Errorf("no snapshot for %s", symbol)
	}
	return quote.Quote{
		Symbol: symbol,
		Price:  payload.Ticker.Day.Close,
		Ts:     time.Now().UTC(),
	}, nil
}

func (p *Polygon) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
