package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pricewatch-go/internal/config"
	"pricewatch-go/internal/metrics"
	"pricewatch-go/internal/quote"
)

const (
	defaultBinanceWSURL   = "wss://stream.binance.com:9443/stream"
	defaultBinanceRESTURL = "https://api.binance.com"

	initialReconnectDelay = time.Second
	maxReconnectDelay     = 60 * time.Second
)

// Binance holds one long-lived websocket connection carrying every subscribed
// symbol multiplexed over the combined-stream endpoint.
type Binance struct {
	wsURL   string
	restURL string
	log     zerolog.Logger
	client  *http.Client
	catalog []quote.Symbol
	cache   *priceCache
}

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// NewBinance constructs the streaming source; empty URLs fall back to the
// public production endpoints.
func NewBinance(cfg config.Binance, log zerolog.Logger) *Binance {
	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = defaultBinanceWSURL
	}
	restURL := strings.TrimSuffix(cfg.RESTURL, "/")
	if restURL == "" {
		restURL = defaultBinanceRESTURL
	}
	return &Binance{
		wsURL:   wsURL,
		restURL: restURL,
		log:     log,
		client:  &http.Client{Timeout: 10 * time.Second},
		catalog: []quote.Symbol{
			{Symbol: "BTCUSDT", Name: "Bitcoin", AssetType: "crypto"},
			{Symbol: "ETHUSDT", Name: "Ethereum", AssetType: "crypto"},
			{Symbol: "SOLUSDT", Name: "Solana", AssetType: "crypto"},
			{Symbol: "BNBUSDT", Name: "BNB", AssetType: "crypto"},
			{Symbol: "ADAUSDT", Name: "Cardano", AssetType: "crypto"},
			{Symbol: "XRPUSDT", Name: "Ripple", AssetType: "crypto"},
		},
		cache: newPriceCache(),
	}
}

func (b *Binance) ListSymbols(ctx context.Context) ([]quote.Symbol, error) {
	out := make([]quote.Symbol, len(b.catalog))
	copy(out, b.catalog)
	return out, nil
}

// GetQuote serves the streaming cache when a price has been observed,
// otherwise performs a one-shot REST fetch and caches the result.
func (b *Binance) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	if px, ok := b.cache.get(symbol); ok {
		return quote.Quote{Symbol: symbol, Price: px, Ts: time.Now().UTC()}, nil
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.restURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return quote.Quote{}, fmt.Errorf("%w: binance returned status %d for %s", ErrSourceUnavailable, resp.StatusCode, symbol)
	}

	var ticker binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return quote.Quote{}, fmt.Errorf("%w: decode ticker: %v", ErrSourceUnavailable, err)
	}
	px, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("%w: invalid price %q", ErrSourceUnavailable, ticker.Price)
	}

	b.cache.set(symbol, px)
	return quote.Quote{Symbol: symbol, Price: px, Ts: time.Now().UTC()}, nil
}

// Stream connects to the combined trade stream and reconnects with capped
// exponential backoff on connection-level failures. Malformed frames are
// dropped without terminating the stream.
func (b *Binance) Stream(ctx context.Context, symbols []string, out chan<- quote.Quote) error {
	if len(symbols) == 0 {
		return fmt.Errorf("binance stream requires at least one symbol")
	}

	streams := make([]string, len(symbols))
	for i, symbol := range symbols {
		streams[i] = strings.ToLower(symbol) + "@trade"
	}
	url := fmt.Sprintf("%s?streams=%s", b.wsURL, strings.Join(streams, "/"))

	delay := initialReconnectDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := b.consumeStream(ctx, url, out, func() { delay = initialReconnectDelay })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		metrics.ReconnectsTotal.WithLabelValues(KindBinance).Inc()
		b.log.Warn().Err(err).Dur("delay", delay).Msg("binance stream disconnected, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = nextReconnectDelay(delay)
	}
}

func (b *Binance) consumeStream(ctx context.Context, url string, out chan<- quote.Quote, onConnected func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	onConnected()
	b.log.Info().Str("url", url).Msg("connected binance trade stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					b.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		q, ok := parseBinanceTrade(message)
		if !ok {
			metrics.MalformedMessagesTotal.WithLabelValues(KindBinance).Inc()
			continue
		}

		b.cache.set(q.Symbol, q.Price)
		select {
		case out <- q:
			metrics.QuotesTotal.WithLabelValues(q.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseBinanceTrade decodes a combined-stream frame. It reports false for
// unparseable payloads, missing fields, and non-numeric prices.
func parseBinanceTrade(message []byte) (quote.Quote, bool) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return quote.Quote{}, false
	}
	if env.Data.Symbol == "" || env.Data.Price == "" {
		return quote.Quote{}, false
	}
	px, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		return quote.Quote{}, false
	}
	return quote.Quote{
		Symbol: env.Data.Symbol,
		Price:  px,
		Ts:     time.UnixMilli(env.Data.TradeTime).UTC(),
	}, true
}

func nextReconnectDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxReconnectDelay {
		return maxReconnectDelay
	}
	return next
}
