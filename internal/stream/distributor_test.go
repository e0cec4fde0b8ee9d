package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/alert"
	"pricewatch-go/internal/notify"
	"pricewatch-go/internal/quote"
)

// scriptedSource plays a fixed set of quotes into the stream channel and
// records when its Stream goroutine has fully returned.
type scriptedSource struct {
	quotes   []quote.Quote
	hold     bool // keep streaming (idle) after the script until canceled
	mu       sync.Mutex
	returned bool
}

func (s *scriptedSource) ListSymbols(ctx context.Context) ([]quote.Symbol, error) {
	return nil, nil
}

func (s *scriptedSource) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	return quote.Quote{}, errors.New("not implemented")
}

func (s *scriptedSource) Stream(ctx context.Context, symbols []string, out chan<- quote.Quote) error {
	defer func() {
		s.mu.Lock()
		s.returned = true
		s.mu.Unlock()
	}()
	for _, q := range s.quotes {
		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *scriptedSource) streamReturned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.returned
}

type recordingSender struct {
	mu    sync.Mutex
	rules []alert.Rule
}

func (r *recordingSender) SendAlert(ctx context.Context, rule alert.Rule, price float64, ts time.Time) bool {
	r.mu.Lock()
	r.rules = append(r.rules, rule)
	r.mu.Unlock()
	return true
}

func (r *recordingSender) sent() []alert.Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.Rule(nil), r.rules...)
}

func newTestDispatcher(ctx context.Context, sender notify.Sender) *notify.Dispatcher {
	d := notify.NewDispatcher(sender, 2, 16, zerolog.Nop())
	d.Start(ctx)
	return d
}

func allowAll(string) bool { return true }

func noRules(string) ([]alert.Rule, error) { return nil, nil }

func TestDistributorForwardsQuotes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{quotes: []quote.Quote{
		{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()},
		{Symbol: "ETHUSDT", Price: 3000, Ts: time.Now()},
	}}
	d := NewDistributor(src, alert.NewEvaluator(), newTestDispatcher(ctx, &recordingSender{}), noRules, zerolog.Nop())

	var got []quote.Quote
	err := d.Run(ctx, []string{"BTCUSDT", "ETHUSDT"}, allowAll, func(q quote.Quote) error {
		got = append(got, q)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("forwarded %d quotes, want 2", len(got))
	}
	if got[0].Symbol != "BTCUSDT" || got[1].Symbol != "ETHUSDT" {
		t.Fatalf("unexpected order: %v, %v", got[0].Symbol, got[1].Symbol)
	}
}

func TestDistributorDeliversBufferedQuotesAfterStreamEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp := newTestDispatcher(ctx, &recordingSender{})

	// The source fills the buffer and returns immediately while the consumer
	// is slow, so quotes are still queued when the stream goroutine exits.
	for i := 0; i < 50; i++ {
		src := &scriptedSource{quotes: []quote.Quote{
			{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()},
			{Symbol: "ETHUSDT", Price: 3000, Ts: time.Now()},
			{Symbol: "SOLUSDT", Price: 150, Ts: time.Now()},
		}}
		d := NewDistributor(src, alert.NewEvaluator(), disp, noRules, zerolog.Nop())

		var got int
		err := d.Run(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, allowAll, func(quote.Quote) error {
			time.Sleep(time.Millisecond)
			got++
			return nil
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got != 3 {
			t.Fatalf("forwarded %d of 3 quotes produced before stream end", got)
		}
	}
}

func TestDistributorDropsQuotesOutsideSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{quotes: []quote.Quote{
		{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()},
		{Symbol: "DOGEUSDT", Price: 0.1, Ts: time.Now()},
		{Symbol: "BTCUSDT", Price: 50001, Ts: time.Now()},
	}}
	d := NewDistributor(src, alert.NewEvaluator(), newTestDispatcher(ctx, &recordingSender{}), noRules, zerolog.Nop())

	var got []quote.Quote
	err := d.Run(ctx, []string{"BTCUSDT"}, func(symbol string) bool { return symbol == "BTCUSDT" }, func(q quote.Quote) error {
		got = append(got, q)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("forwarded %d quotes, want 2", len(got))
	}
	for _, q := range got {
		if q.Symbol != "BTCUSDT" {
			t.Fatalf("forwarded unwanted symbol %q", q.Symbol)
		}
	}
}

func TestDistributorDispatchesTriggeredAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &recordingSender{}
	disp := newTestDispatcher(ctx, sender)

	rule := alert.Rule{ID: "alert_deadbeef", Symbol: "BTCUSDT", Kind: alert.KindPriceAbove, Threshold: 49000, Enabled: true}
	lookup := func(symbol string) ([]alert.Rule, error) {
		if symbol == "BTCUSDT" {
			return []alert.Rule{rule}, nil
		}
		return nil, nil
	}

	src := &scriptedSource{quotes: []quote.Quote{
		{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()},
	}}
	d := NewDistributor(src, alert.NewEvaluator(), disp, lookup, zerolog.Nop())

	if err := d.Run(ctx, []string{"BTCUSDT"}, allowAll, func(quote.Quote) error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		sent := sender.sent()
		if len(sent) == 1 {
			if sent[0].ID != rule.ID {
				t.Fatalf("dispatched rule %q, want %q", sent[0].ID, rule.ID)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("alert never dispatched, got %d", len(sent))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDistributorRuleLookupFailureSkipsQuoteEvaluation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lookup := func(string) ([]alert.Rule, error) { return nil, errors.New("db closed") }
	src := &scriptedSource{quotes: []quote.Quote{
		{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()},
	}}
	d := NewDistributor(src, alert.NewEvaluator(), newTestDispatcher(ctx, &recordingSender{}), lookup, zerolog.Nop())

	var got int
	err := d.Run(ctx, []string{"BTCUSDT"}, allowAll, func(quote.Quote) error {
		got++
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 1 {
		t.Fatalf("forwarded %d quotes, want 1: lookup failure must not drop the quote", got)
	}
}

func TestDistributorCancelWaitsForStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dispCtx, dispCancel := context.WithCancel(context.Background())
	defer dispCancel()

	src := &scriptedSource{hold: true}
	d := NewDistributor(src, alert.NewEvaluator(), newTestDispatcher(dispCtx, &recordingSender{}), noRules, zerolog.Nop())

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run(ctx, []string{"BTCUSDT"}, allowAll, func(quote.Quote) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !src.streamReturned() {
		t.Fatal("Run returned before the stream goroutine released the source")
	}
}

func TestDistributorStopsOnSendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{
		quotes: []quote.Quote{{Symbol: "BTCUSDT", Price: 50000, Ts: time.Now()}},
		hold:   true,
	}
	d := NewDistributor(src, alert.NewEvaluator(), newTestDispatcher(ctx, &recordingSender{}), noRules, zerolog.Nop())

	sendErr := errors.New("peer gone")
	err := d.Run(ctx, []string{"BTCUSDT"}, allowAll, func(quote.Quote) error { return sendErr })
	if !errors.Is(err, sendErr) {
		t.Fatalf("Run returned %v, want send error", err)
	}
	if !src.streamReturned() {
		t.Fatal("Run returned before releasing the source")
	}
}
