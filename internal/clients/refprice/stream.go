package refprice

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/health"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
)

const (
	// WebSocket connection constants
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	// Reconnection constants
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// tickerMessage is one price update on the ticker channel.
type tickerMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	TS     int64  `json:"ts"` // exchange timestamp, milliseconds
}

// TickerStream maintains a live ticker subscription against the reference
// exchange and caches the last price per symbol. The connection recovers
// on its own; consumers only ever read the cache and judge freshness
// themselves.
type TickerStream struct {
	// Connection
	url        string
	symbols    []string
	httpClient *http.Client // Reusable HTTP client configured for HTTP/1.1
	conn       *websocket.Conn
	connCtx    context.Context    // Connection context (cancelled on disconnect)
	cancelFunc context.CancelFunc // For cancelling the connection context
	mu         sync.RWMutex

	// Dependencies
	collector *health.MetricsCollector
	clk       clock.Clock
	log       zerolog.Logger

	// State
	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	// Cache (thread-safe)
	lastPrices map[string]Price
	cacheMu    sync.RWMutex
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1
// Required because CDN-fronted exchanges negotiate HTTP/2 via TLS ALPN,
// but WebSocket requires HTTP/1.1 for the upgrade handshake.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				// Force HTTP/1.1 by only advertising http/1.1 in ALPN
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false, // Explicitly disable HTTP/2
		},
	}
}

// NewTickerStream creates a ticker stream client for the given symbols.
func NewTickerStream(url string, symbols []string, collector *health.MetricsCollector, clk clock.Clock, log zerolog.Logger) *TickerStream {
	return &TickerStream{
		url:        url,
		symbols:    symbols,
		httpClient: createHTTP1Client(),
		collector:  collector,
		clk:        clk,
		log:        log.With().Str("component", "refprice_stream").Logger(),
		lastPrices: make(map[string]Price),
		stopChan:   make(chan struct{}),
	}
}

// Start initializes the WebSocket connection and starts the read loop
func (ws *TickerStream) Start() error {
	ws.log.Info().Str("url", ws.url).Msg("Starting reference price stream")

	// Initial connection
	if err := ws.Connect(); err != nil {
		ws.log.Warn().Err(err).Msg("Initial WebSocket connection failed, will retry in background")
		// Start reconnect loop in background
		go ws.reconnectLoop()
		return err
	}

	// Start read loop in background with connection context
	ws.mu.RLock()
	ctx := ws.connCtx
	ws.mu.RUnlock()
	go ws.readMessages(ctx)

	ws.log.Info().Msg("Reference price stream started")
	return nil
}

// Stop gracefully shuts down the WebSocket connection
func (ws *TickerStream) Stop() error {
	ws.mu.Lock()
	if ws.stopped {
		ws.mu.Unlock()
		return nil
	}
	ws.stopped = true
	ws.mu.Unlock()

	ws.log.Info().Msg("Stopping reference price stream")

	// Signal stop
	close(ws.stopChan)

	// Close connection
	return ws.Disconnect()
}

// Connect establishes the WebSocket connection and subscribes to the
// ticker channel for the configured symbols.
func (ws *TickerStream) Connect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.log.Info().Str("url", ws.url).Msg("Connecting to reference price WebSocket")

	// Create context with timeout for the dial operation
	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, ws.url, &websocket.DialOptions{
		HTTPClient: ws.httpClient,
	})
	if err != nil {
		ws.collector.RecordError(SourceStream, false)
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	// Create a long-lived context for the connection
	// This context is used for read operations and cancelled on disconnect
	connCtx, connCancel := context.WithCancel(context.Background())
	ws.conn = conn
	ws.connCtx = connCtx
	ws.cancelFunc = connCancel
	ws.connected = true

	// nhooyr.io/websocket handles ping/pong automatically

	if err := ws.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		ws.conn = nil
		ws.connCtx = nil
		ws.cancelFunc = nil
		ws.connected = false
		ws.collector.RecordError(SourceStream, false)
		return fmt.Errorf("failed to subscribe to ticker: %w", err)
	}

	ws.log.Info().Strs("symbols", ws.symbols).Msg("Connected to reference price WebSocket")
	return nil
}

// Disconnect closes the WebSocket connection
func (ws *TickerStream) Disconnect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil {
		return nil
	}

	ws.log.Info().Msg("Disconnecting from reference price WebSocket")

	// Cancel the connection context to unblock any pending Read operations
	if ws.cancelFunc != nil {
		ws.cancelFunc()
		ws.cancelFunc = nil
	}

	// Close connection with normal closure status
	err := ws.conn.Close(websocket.StatusNormalClosure, "")

	ws.conn = nil
	ws.connCtx = nil
	ws.connected = false

	if err != nil {
		return fmt.Errorf("error closing WebSocket: %w", err)
	}

	return nil
}

// subscribe sends the ticker subscription for the configured symbols.
func (ws *TickerStream) subscribe(ctx context.Context) error {
	subscribeMsg := map[string]interface{}{
		"op":      "subscribe",
		"channel": "ticker",
		"symbols": ws.symbols,
	}

	data, err := json.Marshal(subscribeMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	// Create write context with timeout
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := ws.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}

	ws.log.Info().Strs("symbols", ws.symbols).Msg("Subscribed to ticker channel")
	return nil
}

// readMessages continuously reads messages from the WebSocket
func (ws *TickerStream) readMessages(ctx context.Context) {
	defer func() {
		ws.log.Info().Msg("Read loop stopped")
		// Attempt reconnection if not intentionally stopped
		ws.mu.RLock()
		stopped := ws.stopped
		ws.mu.RUnlock()
		if !stopped {
			go ws.reconnectLoop()
		}
	}()

	for {
		select {
		case <-ws.stopChan:
			return
		case <-ctx.Done():
			ws.log.Debug().Msg("Read loop context cancelled")
			return
		default:
		}

		ws.mu.RLock()
		conn := ws.conn
		ws.mu.RUnlock()

		if conn == nil {
			ws.log.Warn().Msg("Connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			// Check if this is an expected close
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				ws.log.Info().Int("status", int(closeStatus)).Msg("WebSocket closed normally")
			} else if ctx.Err() != nil {
				// Context was cancelled (intentional disconnect)
				ws.log.Debug().Msg("Read cancelled by context")
			} else {
				ws.log.Error().Err(err).Msg("Unexpected WebSocket read error")
				ws.collector.RecordError(SourceStream, false)
			}
			return
		}

		// Only process text messages
		if msgType != websocket.MessageText {
			ws.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-text message")
			continue
		}

		if err := ws.handleMessage(message); err != nil {
			ws.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle ticker message")
			ws.collector.RecordError(SourceStream, false)
			// Continue reading despite parse errors
		}
	}
}

// handleMessage parses one ticker frame and updates the price cache.
func (ws *TickerStream) handleMessage(message []byte) error {
	var msg tickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("failed to parse ticker message: %w", err)
	}

	// Subscription acks and heartbeats carry no price
	if msg.Type != "ticker" {
		ws.log.Debug().Str("type", msg.Type).Msg("Ignoring non-ticker message")
		return nil
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return fmt.Errorf("failed to parse ticker price %q: %w", msg.Price, err)
	}
	if msg.Symbol == "" || !price.IsPositive() {
		return fmt.Errorf("ticker message missing symbol or positive price: %s", string(message))
	}

	dataTS := time.UnixMilli(msg.TS).UTC()
	observed := Price{
		Source: SourceStream,
		Symbol: msg.Symbol,
		Price:  price,
		At:     ws.clk.Now().UTC(),
	}

	ws.cacheMu.Lock()
	ws.lastPrices[msg.Symbol] = observed
	ws.cacheMu.Unlock()

	// Every field present counts toward completeness scoring
	ws.collector.RecordData(SourceStream, dataTS, 3, 3)
	ws.collector.RecordValue(SourceStream, "price", price.InexactFloat64())

	return nil
}

// reconnectLoop handles automatic reconnection with exponential backoff
func (ws *TickerStream) reconnectLoop() {
	ws.mu.Lock()
	if ws.reconnecting || ws.stopped {
		ws.mu.Unlock()
		return
	}
	ws.reconnecting = true
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		ws.reconnecting = false
		ws.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-ws.stopChan:
			ws.log.Info().Msg("Reconnection loop stopped")
			return
		default:
		}

		ws.mu.RLock()
		stopped := ws.stopped
		ws.mu.RUnlock()
		if stopped {
			return
		}

		attempt++

		delay := ws.calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			ws.log.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Attempting to reconnect to reference price WebSocket")
		} else {
			ws.log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Reconnection attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-ws.stopChan:
			return
		}

		if err := ws.Connect(); err != nil {
			ws.log.Error().Err(err).
				Int("attempt", attempt).
				Msg("Reconnection failed")
			continue
		}

		ws.log.Info().
			Int("attempt", attempt).
			Msg("Successfully reconnected to reference price WebSocket")

		// Reset attempt counter on successful connection
		attempt = 0

		// Start read loop with connection context
		ws.mu.RLock()
		ctx := ws.connCtx
		ws.mu.RUnlock()
		go ws.readMessages(ctx)
		return
	}
}

// calculateBackoff calculates exponential backoff delay
func (ws *TickerStream) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))

	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}

	return time.Duration(delay)
}

// LatestPrice returns the last streamed price for the symbol, if any.
// Freshness is the caller's judgement; the cache never expires entries.
func (ws *TickerStream) LatestPrice(symbol string) (Price, bool) {
	ws.cacheMu.RLock()
	defer ws.cacheMu.RUnlock()

	price, ok := ws.lastPrices[symbol]
	return price, ok
}

// IsConnected returns current connection status
func (ws *TickerStream) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}
