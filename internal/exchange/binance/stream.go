package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/minions/internal/exchange"
)

// WebSocket timeouts
const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second

	eventBuffer = 256
)

// StreamNames lists the combined-stream names for a symbol: its trades and
// one kline stream per interval.
func StreamNames(symbol string, intervals []string) []string {
	s := strings.ToLower(symbol)
	names := make([]string, 0, len(intervals)+1)
	names = append(names, s+"@trade")
	for _, interval := range intervals {
		names = append(names, s+"@kline_"+interval)
	}
	return names
}

func (c *Client) streamURL(symbol string, intervals []string) string {
	return c.cfg.StreamURL + "/stream?streams=" + strings.Join(StreamNames(symbol, intervals), "/")
}

// Subscribe opens one combined stream carrying the symbol's trades and klines.
// The stream outlives ctx; ctx only bounds the dial.
func (c *Client) Subscribe(ctx context.Context, symbol string, intervals []string) (exchange.Stream, error) {
	if err := c.dialLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait dial slot: %w", err)
	}

	target := c.streamURL(symbol, intervals)
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", symbol, err)
	}

	s := &wsStream{
		conn:        conn,
		events:      make(chan exchange.Event, eventBuffer),
		closed:      make(chan struct{}),
		readTimeout: c.cfg.ReadTimeout,
		logger:      c.logger.WithField("symbol", symbol),
	}
	s.logger.WithField("streams", len(intervals)+1).Info("WebSocket connected")

	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn        *websocket.Conn
	events      chan exchange.Event
	closed      chan struct{}
	closeOnce   sync.Once
	readTimeout time.Duration
	logger      *logrus.Entry

	mu  sync.Mutex
	err error
}

func (s *wsStream) Events() <-chan exchange.Event {
	return s.events
}

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close force-closes the transport. Safe to call more than once.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteTimeout),
		)
		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *wsStream) fail(err error) {
	if s.isClosed() {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// readLoop decodes frames until the connection ends. Server pings extend the
// read deadline and are answered with pongs.
func (s *wsStream) readLoop() {
	defer close(s.events)

	s.conn.SetPingHandler(func(appData string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read error: %w", err))
			return
		}

		ev, ok, err := decodeEvent(raw)
		if err != nil {
			s.logger.WithError(err).Debug("Dropping undecodable frame")
			continue
		}
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.closed:
			return
		}
	}
}
