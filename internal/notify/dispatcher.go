package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/alert"
	"pricewatch-go/internal/metrics"
	"pricewatch-go/internal/quote"
)

// Sender delivers one notification and reports success.
type Sender interface {
	SendAlert(ctx context.Context, rule alert.Rule, price float64, ts time.Time) bool
}

type pending struct {
	rule alert.Rule
	q    quote.Quote
}

// Dispatcher fans triggered alerts out to a Sender through a fixed pool of
// workers fed by a bounded queue. Dispatch never blocks the quote path:
// when the queue is full the newest notification is dropped and counted.
type Dispatcher struct {
	sender  Sender
	queue   chan pending
	workers int
	log     zerolog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, workers, queueSize int, log zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan pending, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the worker pool. Workers drain until ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-d.queue:
					d.deliver(ctx, item)
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Dispatch queues one notification and returns immediately.
func (d *Dispatcher) Dispatch(rule alert.Rule, q quote.Quote) {
	select {
	case d.queue <- pending{rule: rule, q: q}:
	default:
		metrics.NotificationsDroppedTotal.Inc()
		d.log.Warn().Str("alert", rule.ID).Str("symbol", q.Symbol).Msg("dispatch queue full, dropping notification")
	}
}

func (d *Dispatcher) deliver(ctx context.Context, item pending) {
	if d.sender.SendAlert(ctx, item.rule, item.q.Price, item.q.Ts) {
		metrics.NotificationsTotal.WithLabelValues("ok").Inc()
		return
	}
	// Best effort: failures are logged by the sender and never retried.
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
}
