package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/orderboard/internal/model"
)

// Errors
var (
	ErrNotConnected        = errors.New("not connected")
	ErrStaleConnection     = errors.New("connection stale (no ping)")
	ErrHandshakeTimeout    = errors.New("handshake timeout")
	ErrAlreadyClosed       = errors.New("already closed")
	ErrSuperseded          = errors.New("session superseded")
	ErrServerDisconnect    = errors.New("server closed namespace")
	ErrTransportClosed     = errors.New("transport closed by server")
	ErrUnexpectedHandshake = errors.New("unexpected handshake packet")
)

// ConnectError is returned when the server rejects the namespace connect.
type ConnectError struct {
	Namespace string
	Message   string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("namespace %s rejected: %s", e.Namespace, e.Message)
}

// Outbound and inbound event names of the order feed.
const (
	EventGetOrders           = "get_orders"
	EventPing                = "ping"
	EventConnectionConfirmed = "connection_confirmed"
	EventOrdersList          = "orders_list"
	EventNewOrder            = "new_order"
	EventOrderStatusUpdated  = "order_status_updated"
)

// Defaults for the order feed endpoint.
const (
	DefaultNamespace  = "/orders"
	DefaultSocketPath = "socket.io"
)

// TimestampedPacket wraps a decoded Socket.IO packet with its receive time.
type TimestampedPacket struct {
	Packet     Packet
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a Socket.IO client.
type ClientConfig struct {
	URL              string        // WebSocket URL (see Endpoint)
	Namespace        string        // Socket.IO namespace, e.g. /orders
	HandshakeTimeout time.Duration // Bound on dial + Engine.IO open + namespace ack
	PingTimeout      time.Duration // Staleness bound when the server advertises none
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Packet channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Namespace:        DefaultNamespace,
		HandshakeTimeout: 20 * time.Second,
		PingTimeout:      45 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                  string        // WebSocket URL (see Endpoint)
	Namespace            string        // Socket.IO namespace
	HandshakeTimeout     time.Duration // Bound on each connect attempt
	WriteTimeout         time.Duration // Write deadline for sends
	HeartbeatInterval    time.Duration // Interval of the application "ping" event
	ReconnectBaseWait    time.Duration // Base wait time for reconnection
	ReconnectMaxWait     time.Duration // Max wait time for reconnection
	ReconnectJitter      time.Duration // Random extra wait, capped at ReconnectBaseWait
	MaxReconnectAttempts int           // Automatic retries before giving up; 0 means the default
	BufferSize           int           // Buffer size for the packet and event channels
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Namespace:            DefaultNamespace,
		HandshakeTimeout:     20 * time.Second,
		WriteTimeout:         5 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseWait:    1 * time.Second,
		ReconnectMaxWait:     30 * time.Second,
		ReconnectJitter:      1 * time.Second,
		MaxReconnectAttempts: 10,
		BufferSize:           256,
	}
}

// Status is a snapshot of the manager's session state.
type Status struct {
	Connected  bool
	Attempt    int
	Generation uint64
	SessionID  string // Engine.IO session id of the live session
}

// EventMeta is carried by every Event.
type EventMeta struct {
	Generation uint64
	SessionID  string
	ReceivedAt time.Time
}

// Metadata returns the event's metadata.
func (m EventMeta) Metadata() EventMeta { return m }

// Event is emitted by the Manager on its single ordered channel. The set of
// implementations is closed; consumers switch on the concrete type.
type Event interface {
	Name() string
	Metadata() EventMeta
	isEvent()
}

// SessionOpened reports a completed handshake.
type SessionOpened struct {
	EventMeta
	NamespaceSID string
}

// ConnectionConfirmed carries the server's connection_confirmed payload.
type ConnectionConfirmed struct {
	EventMeta
	Payload model.ConnectionConfirmed
}

// SnapshotReceived carries a full orders_list.
type SnapshotReceived struct {
	EventMeta
	Orders []model.RawOrder
	Raw    json.RawMessage
}

// OrderCreated carries a new_order delta.
type OrderCreated struct {
	EventMeta
	Order model.RawOrder
	Raw   json.RawMessage
}

// OrderStatusChanged carries an order_status_updated delta.
type OrderStatusChanged struct {
	EventMeta
	Update model.StatusUpdate
	Raw    json.RawMessage
}

// MalformedEvent reports a known event whose payload could not be decoded.
type MalformedEvent struct {
	EventMeta
	Event string
	Err   error
	Raw   json.RawMessage
}

// ConnectionError reports a transport or handshake failure after the
// initial connect.
type ConnectionError struct {
	EventMeta
	Err error
}

// Disconnected reports that the live session is gone.
type Disconnected struct {
	EventMeta
	Reason string
}

// ReconnectExhausted reports that automatic retries have stopped.
type ReconnectExhausted struct {
	EventMeta
	Attempts int
}

func (SessionOpened) Name() string       { return "session_opened" }
func (ConnectionConfirmed) Name() string { return EventConnectionConfirmed }
func (SnapshotReceived) Name() string    { return EventOrdersList }
func (OrderCreated) Name() string        { return EventNewOrder }
func (OrderStatusChanged) Name() string  { return EventOrderStatusUpdated }
func (MalformedEvent) Name() string      { return "malformed_event" }
func (ConnectionError) Name() string     { return "connection_error" }
func (Disconnected) Name() string        { return "disconnected" }
func (ReconnectExhausted) Name() string  { return "reconnect_exhausted" }

func (SessionOpened) isEvent()       {}
func (ConnectionConfirmed) isEvent() {}
func (SnapshotReceived) isEvent()    {}
func (OrderCreated) isEvent()        {}
func (OrderStatusChanged) isEvent()  {}
func (MalformedEvent) isEvent()      {}
func (ConnectionError) isEvent()     {}
func (Disconnected) isEvent()        {}
func (ReconnectExhausted) isEvent()  {}
