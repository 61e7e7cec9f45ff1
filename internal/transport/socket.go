package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SocketConfig configures SocketChannel behavior.
type SocketConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// HandshakeTimeout bounds dial plus namespace connect.
	HandshakeTimeout time.Duration
	// ReadTimeout is used when the server does not announce ping timing.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Reconnect enables automatic reconnection after a dropped connection.
	Reconnect bool
}

// DefaultSocketConfig returns default channel configuration.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Reconnect:         true,
	}
}

// SocketChannel implements Channel over a Socket.IO websocket transport.
// All handlers run on a single goroutine, so events of one name are
// delivered in arrival order.
type SocketChannel struct {
	endpoint string
	config   SocketConfig
	log      *logrus.Entry
	registry *Registry

	conn        *websocket.Conn
	connMu      sync.Mutex
	readTimeout time.Duration

	connected atomic.Bool
	closed    atomic.Bool
	started   atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

var _ Channel = (*SocketChannel)(nil)

// NewSocketChannel creates an unconnected channel for endpoint.
// A nil config selects DefaultSocketConfig.
func NewSocketChannel(endpoint string, config *SocketConfig, log *logrus.Entry) *SocketChannel {
	cfg := DefaultSocketConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &SocketChannel{
		endpoint: endpoint,
		config:   cfg,
		log:      log.WithField("component", "transport"),
		registry: NewRegistry(),
		done:     make(chan struct{}),
	}
}

// SocketURL turns a base URL into a Socket.IO websocket endpoint.
// http(s) schemes map to ws(s); an empty path becomes /socket.io/.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}

	q := u.Query()
	if q.Get("EIO") == "" {
		q.Set("EIO", "4")
	}
	if q.Get("transport") == "" {
		q.Set("transport", "websocket")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Connect dials and performs the namespace handshake. When the first attempt
// fails and reconnection is enabled, the channel keeps retrying in the
// background and the error is still returned.
func (c *SocketChannel) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return nil
	}

	conn, readTimeout, err := c.dial(ctx)
	if err == nil {
		c.setConn(conn, readTimeout)
	}

	if err == nil || c.config.Reconnect {
		if !c.started.Swap(true) {
			c.wg.Add(1)
			go c.run()
		}
	}

	return err
}

// IsConnected reports whether the namespace handshake has completed.
func (c *SocketChannel) IsConnected() bool {
	return c.connected.Load()
}

// Emit sends event with payload.
func (c *SocketChannel) Emit(event string, payload any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}

	data, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}

	if err := c.write(data); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Subscribe registers h for event.
func (c *SocketChannel) Subscribe(event string, h Handler) ListenerID {
	return c.registry.Subscribe(event, h)
}

// Unsubscribe removes a listener.
func (c *SocketChannel) Unsubscribe(event string, id ListenerID) {
	c.registry.Unsubscribe(event, id)
}

// Close closes the connection and stops the reconnect loop.
func (c *SocketChannel) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		c.conn.WriteMessage(websocket.TextMessage, disconnectFrame)
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// dial opens the websocket and completes the Engine.IO/Socket.IO handshake.
func (c *SocketChannel) dial(ctx context.Context) (*websocket.Conn, time.Duration, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("websocket dial: %w", err)
	}

	readTimeout, err := c.handshake(conn)
	if err != nil {
		conn.Close()
		return nil, 0, err
	}
	return conn, readTimeout, nil
}

func (c *SocketChannel) handshake(conn *websocket.Conn) (time.Duration, error) {
	deadline := time.Now().Add(c.config.HandshakeTimeout)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	f, err := readFrame(conn)
	if err != nil {
		return 0, fmt.Errorf("read open packet: %w", err)
	}
	if f.kind != frameOpen {
		return 0, fmt.Errorf("expected open packet, got kind %d", f.kind)
	}

	readTimeout := c.config.ReadTimeout
	var open openPayload
	if err := json.Unmarshal(f.payload, &open); err == nil && open.PingInterval > 0 {
		readTimeout = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, connectFrame); err != nil {
		return 0, fmt.Errorf("write namespace connect: %w", err)
	}

	for {
		f, err := readFrame(conn)
		if err != nil {
			return 0, fmt.Errorf("read namespace connect: %w", err)
		}
		switch f.kind {
		case frameConnect:
			return readTimeout, nil
		case frameConnectError:
			var body connectErrorPayload
			_ = json.Unmarshal(f.payload, &body)
			return 0, fmt.Errorf("namespace connect rejected: %s", body.Message)
		case framePing:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, pongFrame); err != nil {
				return 0, fmt.Errorf("write pong: %w", err)
			}
		}
	}
}

func (c *SocketChannel) setConn(conn *websocket.Conn, readTimeout time.Duration) {
	c.connMu.Lock()
	c.conn = conn
	c.readTimeout = readTimeout
	c.connMu.Unlock()
	c.connected.Store(true)
}

func (c *SocketChannel) dropConn(conn *websocket.Conn) {
	c.connected.Store(false)
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()
}

func (c *SocketChannel) current() (*websocket.Conn, time.Duration) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn, c.readTimeout
}

func (c *SocketChannel) write(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// run owns the connection: it reads frames, dispatches events and
// reconnects with exponential backoff.
func (c *SocketChannel) run() {
	defer c.wg.Done()

	delay := newBackoff(c.config.ReconnectDelay, c.config.MaxReconnectDelay)

	for !c.closed.Load() {
		conn, readTimeout := c.current()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(delay.current()):
			}

			var err error
			conn, readTimeout, err = c.reconnect()
			if err != nil {
				next := delay.fail()
				c.log.WithError(err).WithField("retry_in", next.String()).Warn("reconnect failed")
				continue
			}
			if conn == nil {
				return
			}
		}

		delay.reset()
		c.log.WithField("endpoint", c.endpoint).Info("push channel connected")
		c.registry.Dispatch(EventConnect, nil)

		reason := c.readLoop(conn, readTimeout)

		c.dropConn(conn)
		c.log.WithField("reason", reason).Info("push channel disconnected")
		payload, _ := json.Marshal(map[string]string{"reason": reason})
		c.registry.Dispatch(EventDisconnect, payload)

		if !c.config.Reconnect {
			return
		}
	}
}

// backoff is the exponential reconnect delay.
type backoff struct {
	initial time.Duration
	max     time.Duration
	delay   time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, delay: initial}
}

func (b *backoff) current() time.Duration {
	return b.delay
}

// fail doubles the delay, capped at max when max is set, and returns it.
func (b *backoff) fail() time.Duration {
	b.delay *= 2
	if b.max > 0 && b.delay > b.max {
		b.delay = b.max
	}
	return b.delay
}

func (b *backoff) reset() {
	b.delay = b.initial
}

// reconnect dials a fresh connection unless Connect already installed one.
// Returns a nil connection without error when the channel was closed meanwhile.
func (c *SocketChannel) reconnect() (*websocket.Conn, time.Duration, error) {
	if conn, readTimeout := c.current(); conn != nil {
		return conn, readTimeout, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
	defer cancel()

	conn, readTimeout, err := c.dial(ctx)
	if err != nil {
		return nil, 0, err
	}
	if c.closed.Load() {
		conn.Close()
		return nil, 0, nil
	}
	c.setConn(conn, readTimeout)
	return conn, readTimeout, nil
}

// readLoop dispatches frames until the connection fails and returns the reason.
func (c *SocketChannel) readLoop(conn *websocket.Conn, readTimeout time.Duration) string {
	for {
		if readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		f, err := readFrame(conn)
		if err != nil {
			if c.closed.Load() {
				return "client closed"
			}
			var fe *frameError
			if errors.As(err, &fe) {
				c.log.WithError(err).Warn("dropping malformed frame")
				continue
			}
			return err.Error()
		}

		switch f.kind {
		case framePing:
			if err := c.write(pongFrame); err != nil {
				return fmt.Sprintf("write pong: %v", err)
			}
		case frameEvent:
			c.registry.Dispatch(f.event, f.payload)
		case frameDisconnect:
			return "server disconnect"
		case frameClose:
			return "server close"
		}
	}
}

// frameError wraps a decode failure of an otherwise healthy connection.
type frameError struct {
	err error
}

func (e *frameError) Error() string {
	return e.err.Error()
}

func (e *frameError) Unwrap() error {
	return e.err
}

func readFrame(conn *websocket.Conn) (frame, error) {
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		return frame{}, err
	}
	if msgType != websocket.TextMessage {
		return frame{}, &frameError{err: fmt.Errorf("unexpected message type %d", msgType)}
	}
	f, err := decodeFrame([]byte(strings.TrimSpace(string(msg))))
	if err != nil {
		return frame{}, &frameError{err: err}
	}
	return f, nil
}
