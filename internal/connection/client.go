package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single Socket.IO session over a WebSocket.
type Client interface {
	// Connect dials, waits for the Engine.IO open packet and joins the
	// namespace. It returns once the namespace connect is acknowledged.
	Connect(ctx context.Context) error

	// Close gracefully closes the session.
	Close() error

	// Emit sends an event on the namespace.
	Emit(event string, args ...any) error

	// Packets returns a channel of namespace event packets.
	// Each packet includes a local timestamp for when it was received.
	Packets() <-chan TimestampedPacket

	// Errors returns a channel carrying the error that ended the session.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool

	// SessionID returns the Engine.IO session id.
	SessionID() string
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	packets chan TimestampedPacket
	errors  chan error
	done    chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu           sync.RWMutex
	connected    bool
	closed       bool
	sid          string
	lastPingAt   time.Time
	staleAfter   time.Duration
	pingInterval time.Duration
}

// NewClient creates a new Socket.IO client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultClientConfig().WriteTimeout
	}

	return &client{
		cfg:     cfg,
		logger:  logger,
		packets: make(chan TimestampedPacket, cfg.BufferSize),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect establishes the session.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("dial %s: %w", c.cfg.URL, ErrHandshakeTimeout)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	// Unblock handshake reads when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	open, nsid, err := c.handshake(conn)
	stop()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrHandshakeTimeout
			}
			return ctx.Err()
		}
		return err
	}
	conn.SetReadDeadline(time.Time{})

	pingInterval := time.Duration(open.PingInterval) * time.Millisecond
	staleAfter := pingInterval + time.Duration(open.PingTimeout)*time.Millisecond
	if staleAfter <= 0 {
		staleAfter = c.cfg.PingTimeout
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.sid = open.SID
	c.lastPingAt = time.Now()
	c.staleAfter = staleAfter
	c.pingInterval = pingInterval
	c.mu.Unlock()

	// Start goroutines
	go c.readLoop()
	if staleAfter > 0 {
		go c.stalenessLoop()
	}

	c.logger.Debug("socket.io connected",
		"url", c.cfg.URL,
		"namespace", c.cfg.Namespace,
		"sid", open.SID,
		"namespace_sid", nsid,
		"ping_interval", pingInterval,
	)

	return nil
}

// handshake reads the Engine.IO open packet, joins the namespace and waits
// for the acknowledgement. Pings arriving in between are answered.
func (c *client) handshake(conn *websocket.Conn) (openPayload, string, error) {
	var open openPayload

	data, err := readFrame(conn)
	if err != nil {
		return open, "", fmt.Errorf("read open packet: %w", err)
	}
	if data[0] != eioOpen {
		return open, "", fmt.Errorf("%w: %q", ErrUnexpectedHandshake, data)
	}
	if err := json.Unmarshal(data[1:], &open); err != nil {
		return open, "", fmt.Errorf("decode open packet: %w", err)
	}

	join := EncodePacket(Packet{Type: PacketConnect, Namespace: c.cfg.Namespace, AckID: -1})
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return open, "", fmt.Errorf("join namespace: %w", err)
	}

	for {
		data, err := readFrame(conn)
		if err != nil {
			return open, "", fmt.Errorf("await namespace ack: %w", err)
		}

		switch data[0] {
		case eioPing:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte{eioPong}); err != nil {
				return open, "", fmt.Errorf("write pong: %w", err)
			}
			continue
		case eioClose:
			return open, "", ErrTransportClosed
		case eioMessage:
		default:
			continue
		}

		p, err := DecodePacket(data[1:])
		if err != nil {
			return open, "", fmt.Errorf("decode namespace ack: %w", err)
		}
		if p.Namespace != c.cfg.Namespace {
			continue
		}

		switch p.Type {
		case PacketConnect:
			var ack connectPayload
			if len(p.Data) > 0 {
				json.Unmarshal(p.Data, &ack)
			}
			return open, ack.SID, nil
		case PacketConnectError:
			var rej connectErrorPayload
			if len(p.Data) > 0 && json.Unmarshal(p.Data, &rej) != nil {
				rej.Message = string(p.Data)
			}
			return open, "", &ConnectError{Namespace: p.Namespace, Message: rej.Message}
		default:
			return open, "", fmt.Errorf("%w: %q", ErrUnexpectedHandshake, data)
		}
	}
}

// Close gracefully closes the session.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasConnected := c.connected
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	if wasConnected {
		conn.SetWriteDeadline(deadline)
		conn.WriteMessage(websocket.TextMessage,
			EncodePacket(Packet{Type: PacketDisconnect, Namespace: c.cfg.Namespace, AckID: -1}))
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	c.writeMu.Unlock()

	return conn.Close()
}

// Emit sends an event on the namespace.
func (c *client) Emit(event string, args ...any) error {
	data, err := EncodeEvent(c.cfg.Namespace, event, args...)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *client) send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Packets returns the packets channel.
func (c *client) Packets() <-chan TimestampedPacket {
	return c.packets
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SessionID returns the Engine.IO session id.
func (c *client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sid
}

// fail reports the error that ended the session, once.
func (c *client) fail(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop reads frames, answers Engine.IO pings and forwards namespace
// events to the packets channel.
func (c *client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := readFrame(c.conn)
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			c.fail(fmt.Errorf("read: %w", err))
			return
		}

		switch data[0] {
		case eioPing:
			c.mu.Lock()
			c.lastPingAt = receivedAt
			c.mu.Unlock()
			if err := c.writeRaw([]byte{eioPong}); err != nil {
				c.logger.Debug("failed to send pong", "error", err)
			}
			continue
		case eioClose:
			c.fail(ErrTransportClosed)
			return
		case eioMessage:
		default:
			continue
		}

		p, err := DecodePacket(data[1:])
		if err != nil {
			c.logger.Warn("undecodable packet", "error", err, "frame", truncate(data, 200))
			continue
		}
		if p.Namespace != c.cfg.Namespace {
			continue
		}

		switch p.Type {
		case PacketEvent:
		case PacketDisconnect:
			c.fail(ErrServerDisconnect)
			return
		case PacketConnectError:
			var rej connectErrorPayload
			json.Unmarshal(p.Data, &rej)
			c.fail(&ConnectError{Namespace: p.Namespace, Message: rej.Message})
			return
		default:
			continue
		}

		select {
		case c.packets <- TimestampedPacket{Packet: p, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}

// writeRaw writes a frame while the session is open.
func (c *client) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// stalenessLoop drops the session when the server stops pinging.
func (c *client) stalenessLoop() {
	c.mu.RLock()
	staleAfter := c.staleAfter
	c.mu.RUnlock()

	check := staleAfter / 4
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > staleAfter {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", staleAfter,
				)
				c.fail(ErrStaleConnection)
				c.conn.Close()
				return
			}
		}
	}
}

// readFrame reads one non-empty text frame.
func readFrame(conn *websocket.Conn) ([]byte, error) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage || len(data) == 0 {
			continue
		}
		return data, nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
