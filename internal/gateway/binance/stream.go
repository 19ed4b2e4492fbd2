package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
)

const (
	// TestnetWSURL is the USD-M futures testnet websocket endpoint.
	TestnetWSURL = "wss://stream.binancefuture.com/ws"
	// MainnetWSURL is the USD-M futures production websocket endpoint.
	MainnetWSURL = "wss://fstream.binance.com/ws"

	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 20 * time.Second
)

// markPriceEvent is the <symbol>@markPrice payload.
type markPriceEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// MarkStream maintains a websocket subscription to mark price updates and
// caches the latest price per symbol. The connection is re-dialed with
// exponential backoff after any failure.
type MarkStream struct {
	url     string
	symbols []string
	logger  *slog.Logger

	mu     sync.RWMutex
	latest map[string]markQuote
	conn   *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}

	// Staleness bound for cached quotes. Reads older than this miss.
	MaxAge time.Duration
}

type markQuote struct {
	price decimal.Decimal
	at    time.Time
}

// NewMarkStream creates a stream for the given symbols. An empty url selects
// the testnet endpoint.
func NewMarkStream(url string, symbols []string, logger *slog.Logger) *MarkStream {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = TestnetWSURL
	}
	return &MarkStream{
		url:     url,
		symbols: symbols,
		logger:  logger.With("component", "mark_stream"),
		latest:  make(map[string]markQuote),
		MaxAge:  10 * time.Second,
	}
}

// Start dials the stream and begins consuming updates in the background.
func (m *MarkStream) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	if err := m.dial(ctx); err != nil {
		m.cancel()
		// run never launches on a failed dial; close done so Stop does not
		// block waiting for it.
		close(m.done)
		return fmt.Errorf("dial mark stream: %w", err)
	}

	go m.run(ctx)
	return nil
}

// Stop closes the stream and waits for the consumer to exit.
func (m *MarkStream) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.mu.Lock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.mu.Unlock()
	<-m.done
}

// Latest returns the cached mark price for the symbol. The second return is
// false when no fresh quote is cached.
func (m *MarkStream) Latest(symbol string) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.latest[symbol]
	if !ok || time.Since(q.at) > m.MaxAge {
		return decimal.Zero, false
	}
	return q.price, true
}

func (m *MarkStream) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	params := make([]string, 0, len(m.symbols))
	for _, s := range m.symbols {
		params = append(params, strings.ToLower(s)+"@markPrice")
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().Unix(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.logger.Info("connected", "url", m.url, "symbols", m.symbols)
	return nil
}

func (m *MarkStream) run(ctx context.Context) {
	defer close(m.done)

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				m.mu.RLock()
				conn := m.conn
				m.mu.RUnlock()
				if conn == nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	retry := 0
	for {
		if ctx.Err() != nil {
			return
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("read failed, reconnecting", "error", err)
			_ = conn.Close()

			select {
			case <-time.After(gateway.Backoff(retry)):
			case <-ctx.Done():
				return
			}
			if err := m.dial(ctx); err != nil {
				m.logger.Warn("reconnect failed", "error", err)
				retry++
				continue
			}
			retry = 0
			continue
		}

		var ev markPriceEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Event != "markPriceUpdate" {
			continue
		}
		price, err := decimal.NewFromString(ev.Price)
		if err != nil {
			continue
		}

		m.mu.Lock()
		m.latest[ev.Symbol] = markQuote{price: price, at: time.Now()}
		m.mu.Unlock()
	}
}

// UseMarkStream attaches a stream to the client. MarkPrice serves from the
// stream cache when a fresh quote exists and falls back to REST otherwise.
func (c *Client) UseMarkStream(stream *MarkStream) {
	c.stream = stream
}
