package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pricewatch-go/internal/quote"
	"pricewatch-go/internal/stream"
)

type sessionState int

const (
	stateIdle sessionState = iota
	stateStreaming
	stateClosing
)

type clientMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Ack frames always carry the symbol list, even when it is empty.
type ackFrame struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type quoteFrame struct {
	Type string      `json:"type"`
	Data quote.Quote `json:"data"`
}

type controlFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Session owns one websocket connection's desired symbol set and at most one
// running distributor. Control messages are processed one at a time on the
// read loop; a subscription change cancels the current distributor and waits
// for it to fully stop before starting the replacement, so two distributors
// never deliver to the same connection.
type Session struct {
	conn           *websocket.Conn
	newDistributor func() *stream.Distributor
	log            zerolog.Logger

	writeMu sync.Mutex // conn writes come from both the read loop and the distributor

	setMu   sync.RWMutex
	desired map[string]struct{}

	state    sessionState
	cancel   context.CancelFunc
	distDone chan struct{}
}

// NewSession wraps an upgraded connection. Each distributor is single-use, so
// the session takes a factory rather than an instance.
func NewSession(conn *websocket.Conn, newDistributor func() *stream.Distributor, log zerolog.Logger) *Session {
	return &Session{
		conn:           conn,
		newDistributor: newDistributor,
		log:            log.With().Str("component", "session").Logger(),
		desired:        make(map[string]struct{}),
		state:          stateIdle,
	}
}

// Run processes control messages until the connection closes, then tears
// everything down. It blocks until teardown is complete.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		s.state = stateClosing
		s.stopDistributor()
		s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.writeFrame(controlFrame{Type: "error", Message: "invalid message"})
			continue
		}
		switch msg.Action {
		case "subscribe":
			s.handleSubscribe(ctx, msg.Symbols)
		case "unsubscribe":
			s.handleUnsubscribe(ctx, msg.Symbols)
		case "ping":
			s.writeFrame(controlFrame{Type: "pong"})
		default:
			s.writeFrame(controlFrame{Type: "error", Message: "unknown action"})
		}
	}
}

func (s *Session) handleSubscribe(ctx context.Context, symbols []string) {
	s.setMu.Lock()
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			s.desired[sym] = struct{}{}
		}
	}
	s.setMu.Unlock()

	s.restartDistributor(ctx)
	s.writeFrame(ackFrame{Type: "subscribed", Symbols: s.desiredList()})
}

func (s *Session) handleUnsubscribe(ctx context.Context, symbols []string) {
	s.setMu.Lock()
	for _, sym := range symbols {
		delete(s.desired, strings.ToUpper(strings.TrimSpace(sym)))
	}
	s.setMu.Unlock()

	s.restartDistributor(ctx)
	s.writeFrame(ackFrame{Type: "unsubscribed", Symbols: s.desiredList()})
}

// restartDistributor enforces the at-most-one invariant: the old distributor
// is fully stopped (transport released) before the new one starts.
func (s *Session) restartDistributor(ctx context.Context) {
	s.stopDistributor()

	symbols := s.desiredList()
	if len(symbols) == 0 {
		s.state = stateIdle
		return
	}

	distCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.distDone = done
	s.state = stateStreaming

	dist := s.newDistributor()
	go func() {
		defer close(done)
		err := dist.Run(distCtx, symbols, s.inSet, s.sendQuote)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug().Err(err).Msg("distributor stopped")
		}
	}()
}

func (s *Session) stopDistributor() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.distDone
	s.cancel = nil
	s.distDone = nil
}

func (s *Session) inSet(symbol string) bool {
	s.setMu.RLock()
	defer s.setMu.RUnlock()
	_, ok := s.desired[symbol]
	return ok
}

func (s *Session) desiredList() []string {
	s.setMu.RLock()
	defer s.setMu.RUnlock()
	out := make([]string, 0, len(s.desired))
	for sym := range s.desired {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Session) sendQuote(q quote.Quote) error {
	return s.writeFrame(quoteFrame{Type: "quote", Data: q})
}

func (s *Session) writeFrame(f any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}
