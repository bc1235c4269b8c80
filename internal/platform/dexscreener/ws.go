package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// DefaultStreamURL is the public pair-update feed.
const DefaultStreamURL = "wss://io.dexscreener.com/dex/screener/pairs"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps a single frame.
	maxMessageSize = 8 << 20
)

// PairUpdateHandler is called for every pair carried by a feed frame.
type PairUpdateHandler func(domain.PairEvent)

// MalformedHandler is called with the decode error of a dropped frame.
type MalformedHandler func(error)

// WSClient is a single connection to the pair feed. It does not reconnect;
// once Done is closed the owner dials a new client.
type WSClient struct {
	wsURL  string
	window int
	now    func() time.Time

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	err    error

	handlerMu         sync.RWMutex
	pairHandlers      []PairUpdateHandler
	malformedHandlers []MalformedHandler

	done chan struct{}
}

// NewWSClient creates a feed client. window is the history length kept on
// each emitted snapshot.
func NewWSClient(wsURL string, window int) *WSClient {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	if window <= 0 {
		window = domain.DefaultHistoryWindow
	}
	return &WSClient{
		wsURL:  wsURL,
		window: window,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Connect dials the feed and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("dexscreener/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dexscreener/ws: connect: %w", err)
	}

	w.conn = conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)
	return nil
}

// OnPairUpdate registers a handler for decoded pair updates.
func (w *WSClient) OnPairUpdate(handler PairUpdateHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.pairHandlers = append(w.pairHandlers, handler)
}

// OnMalformed registers a handler for frames that could not be decoded.
func (w *WSClient) OnMalformed(handler MalformedHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.malformedHandlers = append(w.malformedHandlers, handler)
}

// Done is closed when the connection ends, by Close or by a read error.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that ended the connection, if any.
func (w *WSClient) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return w.conn.Close()
	}
	return nil
}

// fail records err and closes the client once.
func (w *WSClient) fail(err error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.err = fmt.Errorf("dexscreener/ws: %w: %v", domain.ErrWSDisconnect, err)
	w.mu.Unlock()
	_ = w.Close()
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			w.fail(err)
			return
		}
		// Any frame counts as liveness.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				w.fail(err)
				return
			}
		}
	}
}

// handleMessage decodes a frame and fans its pairs out to the handlers.
// Frames that do not decode are reported to the malformed handlers only.
func (w *WSClient) handleMessage(raw []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.reportMalformed(fmt.Errorf("decode frame: %w", err))
		return
	}

	pairs := msg.Pairs
	if msg.Pair != nil {
		pairs = append(pairs, *msg.Pair)
	}
	if len(pairs) == 0 {
		w.reportMalformed(fmt.Errorf("frame carries no pair"))
		return
	}

	w.handlerMu.RLock()
	handlers := w.pairHandlers
	w.handlerMu.RUnlock()

	now := w.now()
	for i := range pairs {
		ev := pairs[i].ToEvent(w.window, now)
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (w *WSClient) reportMalformed(err error) {
	w.handlerMu.RLock()
	handlers := w.malformedHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}
