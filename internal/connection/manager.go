package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/orderboard/internal/model"
)

// Manager owns the order feed session and its reconnect policy.
type Manager interface {
	// Connect establishes a session. Errors are returned, not retried.
	Connect(ctx context.Context) error

	// Disconnect tears down the session and cancels pending timers.
	// Automatic reconnects stay off until the next Connect or ForceReconnect.
	Disconnect()

	// ForceReconnect tears down, resets the attempt counter and connects.
	ForceReconnect(ctx context.Context) error

	// Events returns the ordered channel of typed events.
	Events() <-chan Event

	// Status returns current session state.
	Status() Status

	// Close permanently shuts the manager down.
	Close(ctx context.Context) error
}

// session is one connected client plus the goroutines serving it.
type session struct {
	gen    uint64
	client Client
	done   chan struct{}
}

// manager implements the Manager interface.
type manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	backoff   *Backoff
	newClient func(ClientConfig, *slog.Logger) Client

	// Output to Router
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	sess       *session
	generation uint64
	attempt    int
	timer      *time.Timer
	stopped    bool // Disconnect called; no automatic reconnects
	closed     bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*manager)

// WithClientFactory overrides how session clients are created.
func WithClientFactory(fn func(ClientConfig, *slog.Logger) Client) ManagerOption {
	return func(m *manager) {
		m.newClient = fn
	}
}

// WithBackoff overrides the reconnect delay policy.
func WithBackoff(b *Backoff) ManagerOption {
	return func(m *manager) {
		m.backoff = b
	}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &manager{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		events:    make(chan Event, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backoff == nil {
		m.backoff = NewBackoff(cfg.ReconnectBaseWait, cfg.ReconnectMaxWait, cfg.ReconnectJitter, nil)
	}
	return m
}

// Connect establishes a session.
func (m *manager) Connect(ctx context.Context) error {
	return m.start(ctx, false)
}

// ForceReconnect tears down, resets the attempt counter and connects.
func (m *manager) ForceReconnect(ctx context.Context) error {
	return m.start(ctx, true)
}

func (m *manager) start(ctx context.Context, resetAttempts bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.stopped = false
	if resetAttempts {
		m.attempt = 0
	}
	gen, old := m.advanceLocked()
	m.mu.Unlock()

	if old != nil {
		old.Close()
		m.emit(Disconnected{EventMeta: m.meta(gen - 1), Reason: "reconnect requested"})
	}

	return m.open(ctx, gen)
}

// Disconnect tears down the session and cancels pending timers.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	gen, old := m.advanceLocked()
	m.mu.Unlock()

	if old != nil {
		old.Close()
		m.emit(Disconnected{EventMeta: m.meta(gen - 1), Reason: "client disconnect"})
		m.logger.Info("disconnected")
	}
}

// Close permanently shuts the manager down.
func (m *manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopped = true
	_, old := m.advanceLocked()
	m.mu.Unlock()

	m.cancel()
	if old != nil {
		old.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the event channel.
func (m *manager) Events() <-chan Event {
	return m.events
}

// Status returns current session state.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Attempt:    m.attempt,
		Generation: m.generation,
	}
	if m.sess != nil {
		s.Connected = m.sess.client.IsConnected()
		s.SessionID = m.sess.client.SessionID()
	}
	return s
}

// advanceLocked invalidates the current session and any pending timer by
// moving to a new generation. The detached client is returned so the caller
// can close it outside the lock.
func (m *manager) advanceLocked() (uint64, Client) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	var old Client
	if m.sess != nil {
		close(m.sess.done)
		old = m.sess.client
		m.sess = nil
	}

	m.generation++
	return m.generation, old
}

// open connects a client for generation gen and starts its session.
func (m *manager) open(ctx context.Context, gen uint64) error {
	cfg := ClientConfig{
		URL:              m.cfg.URL,
		Namespace:        m.cfg.Namespace,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
	client := m.newClient(cfg, m.logger.With("generation", gen))

	if err := client.Connect(ctx); err != nil {
		client.Close()
		return fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	if m.closed || m.generation != gen {
		m.mu.Unlock()
		client.Close()
		return ErrSuperseded
	}
	sess := &session{gen: gen, client: client, done: make(chan struct{})}
	m.sess = sess
	m.attempt = 0
	m.wg.Add(2)
	m.mu.Unlock()

	m.emit(SessionOpened{EventMeta: m.metaFor(sess, time.Now())})

	go m.readLoop(sess)
	go m.heartbeatLoop(sess)

	if err := client.Emit(EventGetOrders); err != nil {
		// A failed write surfaces as a drop on the read side.
		m.logger.Warn("failed to request orders", "error", err)
	}

	m.logger.Info("connected",
		"url", m.cfg.URL,
		"namespace", m.cfg.Namespace,
		"generation", gen,
		"sid", client.SessionID(),
	)
	return nil
}

// readLoop turns packets of one session into events until it ends.
func (m *manager) readLoop(sess *session) {
	defer m.wg.Done()

	for {
		select {
		case <-sess.done:
			return
		case err := <-sess.client.Errors():
			m.drain(sess)
			m.handleDrop(sess, err)
			return
		case pkt := <-sess.client.Packets():
			if ev := m.decode(sess, pkt); ev != nil {
				m.emit(ev)
			}
		}
	}
}

// drain forwards packets that were read before the session failed.
func (m *manager) drain(sess *session) {
	for {
		select {
		case pkt := <-sess.client.Packets():
			if ev := m.decode(sess, pkt); ev != nil {
				m.emit(ev)
			}
		default:
			return
		}
	}
}

// heartbeatLoop emits the application keep-alive while the session lives.
func (m *manager) heartbeatLoop(sess *session) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			if err := sess.client.Emit(EventPing); err != nil {
				m.logger.Debug("failed to send heartbeat", "error", err)
			}
		}
	}
}

// handleDrop detaches a session that ended on its own and schedules a
// reconnect unless the manager was told to stay down.
func (m *manager) handleDrop(sess *session, cause error) {
	m.mu.Lock()
	if m.sess != sess {
		m.mu.Unlock()
		return
	}
	close(sess.done)
	m.sess = nil
	m.mu.Unlock()

	sess.client.Close()

	m.logger.Warn("connection lost", "generation", sess.gen, "error", cause)
	meta := m.meta(sess.gen)
	m.emit(ConnectionError{EventMeta: meta, Err: cause})
	m.emit(Disconnected{EventMeta: meta, Reason: cause.Error()})

	m.retry(sess.gen)
}

// retry arms the reconnect timer if gen is still the current generation
// with no live session, or gives up once the attempt budget is spent.
func (m *manager) retry(gen uint64) {
	m.mu.Lock()
	if m.generation != gen || m.sess != nil || m.stopped || m.closed {
		m.mu.Unlock()
		return
	}

	if m.attempt >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempt
		m.mu.Unlock()

		m.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		m.emit(ReconnectExhausted{EventMeta: m.meta(gen), Attempts: attempts})
		return
	}

	delay := m.backoff.Delay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.timer = time.AfterFunc(delay, func() {
		m.reconnect(gen)
	})
	m.mu.Unlock()

	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"delay", delay,
		"generation", gen,
	)
}

// reconnect runs when a backoff timer fires.
func (m *manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.closed || m.stopped || m.generation != gen {
		m.mu.Unlock()
		m.logger.Debug("stale reconnect timer", "generation", gen)
		return
	}
	m.timer = nil
	next, old := m.advanceLocked()
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	if old != nil {
		old.Close()
	}

	err := m.open(m.ctx, next)
	if err == nil || errors.Is(err, ErrSuperseded) {
		return
	}

	m.logger.Warn("reconnection failed", "generation", next, "error", err)
	m.emit(ConnectionError{EventMeta: m.meta(next), Err: err})

	m.retry(next)
}

// decode maps one event packet to a typed Event. Unknown events yield nil.
func (m *manager) decode(sess *session, pkt TimestampedPacket) Event {
	meta := m.metaFor(sess, pkt.ReceivedAt)

	name, args, err := pkt.Packet.Event()
	if err != nil {
		return MalformedEvent{EventMeta: meta, Err: err, Raw: pkt.Packet.Data}
	}

	var arg json.RawMessage
	if len(args) > 0 {
		arg = args[0]
	}

	switch name {
	case EventConnectionConfirmed:
		var p model.ConnectionConfirmed
		if len(arg) > 0 {
			if err := json.Unmarshal(arg, &p); err != nil {
				return MalformedEvent{EventMeta: meta, Event: name, Err: err, Raw: arg}
			}
		}
		return ConnectionConfirmed{EventMeta: meta, Payload: p}

	case EventOrdersList:
		orders, err := m.decodeOrders(arg)
		if err != nil {
			return MalformedEvent{EventMeta: meta, Event: name, Err: err, Raw: arg}
		}
		return SnapshotReceived{EventMeta: meta, Orders: orders, Raw: arg}

	case EventNewOrder:
		var o model.RawOrder
		if err := json.Unmarshal(arg, &o); err != nil {
			return MalformedEvent{EventMeta: meta, Event: name, Err: err, Raw: arg}
		}
		return OrderCreated{EventMeta: meta, Order: o, Raw: arg}

	case EventOrderStatusUpdated:
		var u model.StatusUpdate
		if err := json.Unmarshal(arg, &u); err != nil {
			return MalformedEvent{EventMeta: meta, Event: name, Err: err, Raw: arg}
		}
		return OrderStatusChanged{EventMeta: meta, Update: u, Raw: arg}

	default:
		m.logger.Debug("ignoring event", "event", name)
		return nil
	}
}

// decodeOrders decodes a snapshot element by element so one bad entry does
// not discard the rest. A null snapshot is an empty one.
func (m *manager) decodeOrders(arg json.RawMessage) ([]model.RawOrder, error) {
	var items []json.RawMessage
	if len(arg) > 0 {
		if err := json.Unmarshal(arg, &items); err != nil {
			return nil, fmt.Errorf("decode orders_list: %w", err)
		}
	}

	orders := make([]model.RawOrder, 0, len(items))
	for i, item := range items {
		var o model.RawOrder
		if err := json.Unmarshal(item, &o); err != nil {
			m.logger.Warn("skipping undecodable order", "index", i, "error", err)
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// emit delivers an event in order. It blocks until the Router takes it or
// the manager closes.
func (m *manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func (m *manager) meta(gen uint64) EventMeta {
	return EventMeta{Generation: gen, ReceivedAt: time.Now()}
}

func (m *manager) metaFor(sess *session, at time.Time) EventMeta {
	return EventMeta{
		Generation: sess.gen,
		SessionID:  sess.client.SessionID(),
		ReceivedAt: at,
	}
}
