package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"quoter_go/internal/domain"
	"quoter_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	// DefaultWSURL is the CLOB market-channel websocket endpoint.
	DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	feedMaxRetries       = 5
	feedPingInterval     = 30 * time.Second
	feedReadTimeout      = 60 * time.Second
	feedHandshakeTimeout = 10 * time.Second
	tickBufferSize       = 16
)

// FeedState describes the feed connection lifecycle.
type FeedState int32

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedSubscribed
	FeedDegraded
)

func (s FeedState) String() string {
	switch s {
	case FeedDisconnected:
		return "disconnected"
	case FeedConnecting:
		return "connecting"
	case FeedSubscribed:
		return "subscribed"
	case FeedDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Feed streams normalized price ticks for one instrument over the market
// websocket channel. It reconnects with exponential backoff; after
// feedMaxRetries+1 consecutive failed sessions it gives up and reports a
// fatal error instead of retrying forever.
//
// Consumers read from Ticks(). Delivery is latest-wins: when the buffer is
// full the oldest tick is dropped, never the newest.
type Feed struct {
	wsURL   string
	assetID string

	ticks chan domain.Tick
	fatal chan error

	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	state   atomic.Int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	fatalOnce sync.Once
	metrics   *infra.Metrics
	logger    *slog.Logger
}

// NewFeed creates a feed for a single asset id.
func NewFeed(wsURL, assetID string, metrics *infra.Metrics) *Feed {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Feed{
		wsURL:   wsURL,
		assetID: assetID,
		ticks:   make(chan domain.Tick, tickBufferSize),
		fatal:   make(chan error, 1),
		metrics: metrics,
		logger:  slog.Default().With("module", "price_feed"),
	}
}

// Ticks returns the stream of normalized price observations.
func (f *Feed) Ticks() <-chan domain.Tick { return f.ticks }

// Fatal delivers at most one unrecoverable feed error.
func (f *Feed) Fatal() <-chan error { return f.fatal }

// State returns the current connection state.
func (f *Feed) State() FeedState { return FeedState(f.state.Load()) }

// Connect starts the websocket session with automatic reconnection.
func (f *Feed) Connect(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.connectionLoop(ctx)

	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff.
// A session that delivered at least one message resets the failure counter.
func (f *Feed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Feed connection loop stopped")
			f.state.Store(int32(FeedDisconnected))
			return
		default:
		}

		if retryCount > feedMaxRetries {
			f.logger.Error("Feed max retries exceeded, giving up",
				slog.Int("retries", retryCount))
			f.state.Store(int32(FeedDisconnected))
			f.reportFatal(fmt.Errorf("%w: %d consecutive failures", domain.ErrFeedLost, retryCount))
			return
		}

		if retryCount > 0 {
			f.metrics.RecordFeedReconnect()
			delay := infra.CalculateBackoff(retryCount - 1)
			f.logger.Warn("Feed reconnecting",
				slog.Int("retry", retryCount),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				continue
			case <-time.After(delay):
			}
		}

		f.state.Store(int32(FeedConnecting))
		if err := f.connect(ctx); err != nil {
			f.logger.Warn("Feed connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)
			f.metrics.RecordError()
			retryCount++
			continue
		}

		f.state.Store(int32(FeedSubscribed))
		f.metrics.SetFeedConnected(true)

		pingCtx, stopPing := context.WithCancel(ctx)
		f.wg.Add(1)
		go f.pingLoop(pingCtx)

		gotData := f.readLoop(ctx)

		stopPing()
		f.metrics.SetFeedConnected(false)

		if ctx.Err() == nil {
			f.state.Store(int32(FeedDegraded))
		}
		if gotData {
			retryCount = 0
		} else {
			retryCount++
		}
	}
}

// connect dials the websocket and subscribes to the market channel.
func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: feedHandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, http.Header{})
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	f.logger.Info("Feed connected",
		slog.String("url", f.wsURL),
		slog.String("asset_id", f.assetID),
	)
	return nil
}

// subscribe requests the market channel with an initial book dump.
func (f *Feed) subscribe() error {
	msg := wsSubscribeMessage{
		Type:        "market",
		AssetIDs:    []string{f.assetID},
		InitialDump: true,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.threadSafeWrite(websocket.TextMessage, msgBytes)
}

// pingLoop sends the plaintext keep-alive the server expects.
func (f *Feed) pingLoop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.threadSafeWrite(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Debug("Feed ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

// threadSafeWrite sends a message to the websocket connection in a
// thread-safe manner.
func (f *Feed) threadSafeWrite(messageType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return conn.WriteMessage(messageType, data)
}

// readLoop reads messages until the connection drops. It reports whether
// any market message was processed during the session.
func (f *Feed) readLoop(ctx context.Context) bool {
	gotData := false

	for {
		select {
		case <-ctx.Done():
			f.closeConnection()
			return gotData
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return gotData
		}

		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Warn("Feed read error", slog.Any("error", err))
			}
			f.closeConnection()
			return gotData
		}

		if f.handleMessage(message) {
			gotData = true
		}
	}
}

// handleMessage parses one websocket frame. Frames may carry a single event
// or a JSON array of events. Returns true when a market event was processed.
func (f *Feed) handleMessage(message []byte) bool {
	message = bytes.TrimSpace(message)
	if len(message) == 0 || bytes.Equal(message, []byte("PONG")) {
		return false
	}

	if message[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(message, &events); err != nil {
			f.logger.Debug("Feed message parse error", slog.Any("error", err))
			return false
		}
		handled := false
		for _, ev := range events {
			if f.handleEvent(ev) {
				handled = true
			}
		}
		return handled
	}
	return f.handleEvent(message)
}

func (f *Feed) handleEvent(event []byte) bool {
	var env wsEnvelope
	if err := json.Unmarshal(event, &env); err != nil {
		f.logger.Debug("Feed event parse error", slog.Any("error", err))
		return false
	}

	switch env.EventType {
	case "book":
		return f.handleBook(event)
	case "price_change":
		return f.handlePriceChange(event)
	default:
		return false
	}
}

// handleBook extracts the best bid/ask from a full book snapshot.
func (f *Feed) handleBook(event []byte) bool {
	var msg bookMessage
	if err := json.Unmarshal(event, &msg); err != nil {
		f.logger.Debug("Feed book parse error", slog.Any("error", err))
		return false
	}
	if msg.AssetID != f.assetID {
		return false
	}

	bid, okBid := bestLevel(msg.Bids, true)
	ask, okAsk := bestLevel(msg.Asks, false)
	if !okBid || !okAsk {
		f.logger.Debug("Feed book snapshot missing a side")
		return false
	}

	f.publish(domain.NewTick(bid, ask, parseWireTimestamp(msg.Timestamp)))
	return true
}

// handlePriceChange extracts the best bid/ask attached to the latest
// incremental change for the instrument.
func (f *Feed) handlePriceChange(event []byte) bool {
	var msg priceChangeMessage
	if err := json.Unmarshal(event, &msg); err != nil {
		f.logger.Debug("Feed price_change parse error", slog.Any("error", err))
		return false
	}

	for i := len(msg.PriceChanges) - 1; i >= 0; i-- {
		pc := msg.PriceChanges[i]
		if pc.AssetID != f.assetID || pc.BestBid == "" || pc.BestAsk == "" {
			continue
		}

		bid, err := decimal.NewFromString(pc.BestBid)
		if err != nil {
			continue
		}
		ask, err := decimal.NewFromString(pc.BestAsk)
		if err != nil {
			continue
		}

		f.publish(domain.NewTick(bid, ask, parseWireTimestamp(msg.Timestamp)))
		return true
	}
	return false
}

// publish delivers a tick latest-wins: when the buffer is full the oldest
// queued tick is evicted so consumers always see the freshest price.
func (f *Feed) publish(tick domain.Tick) {
	if err := tick.Validate(); err != nil {
		f.logger.Debug("Feed dropping invalid tick", slog.Any("error", err))
		return
	}

	f.metrics.RecordTick()
	for {
		select {
		case f.ticks <- tick:
			return
		default:
		}
		select {
		case <-f.ticks:
			f.metrics.RecordTickDropped()
		default:
		}
	}
}

// bestLevel returns the most competitive price in a book side.
func bestLevel(levels []priceLevel, wantMax bool) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		if !found || (wantMax && price.GreaterThan(best)) || (!wantMax && price.LessThan(best)) {
			best = price
			found = true
		}
	}
	return best, found
}

// parseWireTimestamp converts the unix-millisecond string the API sends.
// A missing or malformed timestamp falls back to receive time.
func parseWireTimestamp(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

func (f *Feed) reportFatal(err error) {
	f.fatalOnce.Do(func() {
		f.fatal <- err
	})
}

// closeConnection safely closes the websocket connection.
func (f *Feed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

// Disconnect closes the websocket connection and stops all loops.
func (f *Feed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
	f.state.Store(int32(FeedDisconnected))
	f.logger.Info("Feed disconnected")
}
