// Package server exposes the REST API and the quote-streaming websocket.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pricewatch-go/internal/alert"
	"pricewatch-go/internal/broker"
	"pricewatch-go/internal/notify"
	"pricewatch-go/internal/source"
	"pricewatch-go/internal/store"
	"pricewatch-go/internal/stream"
)

type Server struct {
	src        source.Source
	db         *store.Store
	notifier   *notify.Slack
	dispatcher *notify.Dispatcher
	evaluator  *alert.Evaluator
	broker     *broker.Alpaca
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

func New(src source.Source, db *store.Store, notifier *notify.Slack, dispatcher *notify.Dispatcher, evaluator *alert.Evaluator, brk *broker.Alpaca, log zerolog.Logger) *Server {
	return &Server{
		src:        src,
		db:         db,
		notifier:   notifier,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		broker:     brk,
		log:        log.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/symbols", s.listSymbols)
	api.GET("/quotes/latest", s.latestQuote)

	api.POST("/alerts", s.createAlert)
	api.GET("/alerts", s.listAlerts)
	api.GET("/alerts/:id", s.getAlert)
	api.PATCH("/alerts/:id", s.updateAlert)
	api.DELETE("/alerts/:id", s.deleteAlert)
	api.POST("/alerts/test", s.testNotification)

	api.POST("/journal", s.createJournalEntry)
	api.GET("/journal", s.listJournalEntries)
	api.DELETE("/journal/:id", s.deleteJournalEntry)

	api.GET("/pnl/daily", s.dailyPnL)

	api.POST("/orders", s.createOrder)
	api.GET("/orders/:id", s.getOrder)

	api.GET("/ws/quotes", s.serveQuotes)
	return r
}

func (s *Server) listSymbols(c *gin.Context) {
	symbols, err := s.src.ListSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "symbol catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

func (s *Server) latestQuote(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	q, err := s.src.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, source.ErrSourceUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quote unavailable for " + symbol})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, q)
}

type createAlertRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Kind      string  `json:"kind" binding:"required"`
	Threshold float64 `json:"threshold"`
	Enabled   *bool   `json:"enabled"`
}

func (s *Server) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !alert.ValidKind(req.Kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown alert kind " + req.Kind})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule, err := s.db.CreateAlert(req.Symbol, req.Kind, req.Threshold, enabled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) listAlerts(c *gin.Context) {
	rules, err := s.db.ListAlerts(c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rules})
}

func (s *Server) getAlert(c *gin.Context) {
	rule, err := s.db.GetAlert(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

type updateAlertRequest struct {
	Enabled   *bool    `json:"enabled"`
	Threshold *float64 `json:"threshold"`
}

func (s *Server) updateAlert(c *gin.Context) {
	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := s.db.UpdateAlert(c.Param("id"), req.Enabled, req.Threshold)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteAlert(c *gin.Context) {
	if err := s.db.DeleteAlert(c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) testNotification(c *gin.Context) {
	if !s.notifier.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "slack webhook not configured"})
		return
	}
	ok := s.notifier.SendTest(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

type createJournalRequest struct {
	Symbol string    `json:"symbol" binding:"required"`
	Side   string    `json:"side" binding:"required"`
	Qty    float64   `json:"qty" binding:"required"`
	Price  float64   `json:"price" binding:"required"`
	Notes  string    `json:"notes"`
	Ts     time.Time `json:"ts"`
}

func (s *Server) createJournalEntry(c *gin.Context) {
	var req createJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Ts.IsZero() {
		req.Ts = time.Now().UTC()
	}
	entry, err := s.db.CreateEntry(req.Symbol, req.Side, req.Qty, req.Price, req.Notes, req.Ts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) listJournalEntries(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := s.db.ListEntries(c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) deleteJournalEntry(c *gin.Context) {
	if err := s.db.DeleteEntry(c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "journal entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type markedPosition struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgPrice      float64 `json:"avg_price"`
	LastPrice     float64 `json:"last_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// dailyPnL marks open positions against the source's latest quotes. Symbols
// whose quote cannot be fetched are reported without a mark.
func (s *Server) dailyPnL(c *gin.Context) {
	positions, err := s.db.ListOpenPositions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var totalUnrealized, totalRealized float64
	marked := make([]markedPosition, 0, len(positions))
	for _, pos := range positions {
		mp := markedPosition{
			Symbol:      pos.Symbol,
			Qty:         pos.Qty,
			AvgPrice:    pos.AvgPrice,
			RealizedPnL: pos.RealizedPnL,
		}
		totalRealized += pos.RealizedPnL
		q, err := s.src.GetQuote(c.Request.Context(), pos.Symbol)
		if err != nil {
			s.log.Debug().Err(err).Str("symbol", pos.Symbol).Msg("skipping mark, quote unavailable")
		} else {
			mp.LastPrice = q.Price
			mp.UnrealizedPnL = (q.Price - pos.AvgPrice) * pos.Qty
			totalUnrealized += mp.UnrealizedPnL
		}
		marked = append(marked, mp)
	}
	c.JSON(http.StatusOK, gin.H{
		"positions":        marked,
		"total_unrealized": totalUnrealized,
		"total_realized":   totalRealized,
	})
}

type createOrderRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Side   string  `json:"side" binding:"required"`
	Qty    float64 `json:"qty" binding:"required"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Side != store.SideBuy && req.Side != store.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy or sell"})
		return
	}
	order, err := s.broker.SubmitMarketOrder(c.Request.Context(), req.Symbol, req.Side, req.Qty)
	if err != nil {
		if errors.Is(err, broker.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "paper trading not configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.broker.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, broker.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "paper trading not configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// serveQuotes upgrades the connection and runs a subscription session until
// the client goes away.
func (s *Server) serveQuotes(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	factory := func() *stream.Distributor {
		return stream.NewDistributor(s.src, s.evaluator, s.dispatcher, s.db.EnabledAlertsBySymbol, s.log)
	}
	NewSession(conn, factory, s.log).Run(c.Request.Context())
}
