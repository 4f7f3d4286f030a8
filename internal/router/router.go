package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/orderboard/internal/connection"
	"github.com/rickgao/orderboard/internal/model"
	"github.com/rickgao/orderboard/internal/orders"
)

// Router is the single dispatch point between the feed and the board.
type Router interface {
	// Start begins routing and kicks off the initial connect.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Journal returns the journal buffer, or nil when journaling is off.
	Journal() *GrowableBuffer[EventRecord]

	// Stats returns current router statistics.
	Stats() RouterStats
}

// Option configures a Router.
type Option func(*router)

// WithNotifier sets the new-order notifier.
func WithNotifier(n Notifier) Option {
	return func(r *router) {
		r.notifier = n
	}
}

// WithoutInitialConnect leaves connecting to the caller.
func WithoutInitialConnect() Option {
	return func(r *router) {
		r.skipConnect = true
	}
}

// router is the internal implementation.
type router struct {
	cfg         RouterConfig
	logger      *slog.Logger
	source      Source
	engine      *orders.Engine
	board       Board
	notifier    Notifier
	skipConnect bool

	// Output to the journal writer (nil when disabled)
	journal *GrowableBuffer[EventRecord]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu            sync.RWMutex
	received      int64
	applied       int64
	notifications int64
	unknownStatus int64
	parseErrors   int64
	publishes     int64
	prunes        int64
}

// NewRouter creates a new Event Router.
func NewRouter(cfg RouterConfig, source Source, engine *orders.Engine, board Board, logger *slog.Logger, opts ...Option) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RolloverInterval <= 0 {
		cfg.RolloverInterval = DefaultRouterConfig().RolloverInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	r := &router{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		engine:   engine,
		board:    board,
		notifier: nopNotifier{},
	}
	if cfg.JournalBufferSize > 0 {
		r.journal = NewGrowableBuffer[EventRecord](cfg.JournalBufferSize)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins routing events.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	if !r.skipConnect {
		r.wg.Add(1)
		go r.initialConnect()
	}

	r.logger.Info("event router started",
		"rollover_interval", r.cfg.RolloverInterval,
		"journal", r.journal != nil,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping event router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
	}

	if r.journal != nil {
		r.journal.Close()
	}

	return nil
}

// Journal returns the journal buffer.
func (r *router) Journal() *GrowableBuffer[EventRecord] {
	return r.journal
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RouterStats{
		EventsReceived: r.received,
		EventsApplied:  r.applied,
		Notifications:  r.notifications,
		UnknownStatus:  r.unknownStatus,
		ParseErrors:    r.parseErrors,
		Publishes:      r.publishes,
		Prunes:         r.prunes,
	}
	if r.journal != nil {
		s.JournalBuffer = r.journal.Stats()
	}
	return s
}

// initialConnect opens the first session. A failure is terminal until the
// user asks for a manual reconnect.
func (r *router) initialConnect() {
	defer r.wg.Done()

	r.board.SetLoading(true)
	if err := r.source.Connect(r.ctx); err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Error("initial connect failed", "error", err)
		r.board.SetError(err.Error())
	}
}

// routeLoop is the main routing goroutine. All engine mutation happens here.
func (r *router) routeLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.RolloverInterval)
	defer ticker.Stop()

	events := r.source.Events()
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				r.logger.Info("event channel closed")
				return
			}
			r.route(ev)
		case <-ticker.C:
			r.rollover()
		}
	}
}

// route journals and dispatches a single event.
func (r *router) route(ev connection.Event) {
	defer r.count(&r.received)

	if r.journal != nil {
		r.journal.Send(newRecord(ev))
	}

	switch e := ev.(type) {
	case connection.SessionOpened:
		r.board.SetConnected(true)
		r.notifier.Prepare(r.ctx)

	case connection.ConnectionConfirmed:
		r.logger.Info("connection confirmed",
			"client_id", e.Payload.ClientID,
			"message", e.Payload.Message,
			"server_time", string(e.Payload.Timestamp),
		)

	case connection.SnapshotReceived:
		r.engine.ApplySnapshot(e.Orders)
		r.count(&r.applied)
		r.publish()
		r.logger.Debug("snapshot applied",
			"received", len(e.Orders),
			"new", len(r.engine.NewOrders()),
			"completed", len(r.engine.CompletedOrders()),
		)

	case connection.OrderCreated:
		res := r.engine.ApplyNewOrder(e.Order)
		if res.Inserted {
			r.count(&r.applied)
			r.publish()
		}
		if res.Accepted {
			r.count(&r.notifications)
			r.notifier.Notify()
		}

	case connection.OrderStatusChanged:
		r.applyStatus(e)

	case connection.MalformedEvent:
		r.count(&r.parseErrors)
		r.logger.Warn("malformed event", "event", e.Event, "error", e.Err)

	case connection.ConnectionError:
		r.logger.Debug("connection error", "generation", e.Generation, "error", e.Err)

	case connection.Disconnected:
		r.board.SetConnected(false)

	case connection.ReconnectExhausted:
		r.board.SetConnected(false)
		r.logger.Error("automatic reconnect gave up; manual reconnect required", "attempts", e.Attempts)
	}
}

// applyStatus moves an order between lists. An update without a status
// carries no transition and is dropped.
func (r *router) applyStatus(e connection.OrderStatusChanged) {
	if strings.TrimSpace(string(e.Update.Status)) == "" {
		r.count(&r.unknownStatus)
		r.logger.Warn("ignoring status update without status",
			"order_id", int64(e.Update.OrderID),
		)
		return
	}

	status, ok := model.ParseStatus(string(e.Update.Status))
	if !ok {
		r.count(&r.unknownStatus)
		r.logger.Warn("ignoring unknown order status",
			"order_id", int64(e.Update.OrderID),
			"status", string(e.Update.Status),
		)
		return
	}

	at, ok := e.Update.Timestamp.Parse(r.cfg.Location)
	if !ok {
		at = e.ReceivedAt
	}
	if at.IsZero() {
		at = time.Now()
	}

	if r.engine.ApplyStatusUpdate(int64(e.Update.OrderID), status, at) {
		r.count(&r.applied)
		r.publish()
	}
}

// rollover drops orders that are no longer today.
func (r *router) rollover() {
	if r.engine.Prune() {
		r.count(&r.prunes)
		r.logger.Info("day rollover pruned orders")
		r.publish()
	}
}

func (r *router) publish() {
	r.board.Publish(r.engine.NewOrders(), r.engine.CompletedOrders())
	r.count(&r.publishes)
}

func (r *router) count(n *int64) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}

// newRecord copies an event for the journal.
func newRecord(ev connection.Event) EventRecord {
	meta := ev.Metadata()
	rec := EventRecord{
		Event:      ev.Name(),
		Generation: meta.Generation,
		SessionID:  meta.SessionID,
		ReceivedAt: meta.ReceivedAt,
	}

	switch e := ev.(type) {
	case connection.SnapshotReceived:
		rec.Payload = e.Raw
	case connection.OrderCreated:
		rec.Payload = e.Raw
		rec.OrderID = int64(e.Order.OrderID)
		if rec.OrderID == 0 {
			rec.OrderID = int64(e.Order.ID)
		}
		rec.Status = string(e.Order.Status)
	case connection.OrderStatusChanged:
		rec.Payload = e.Raw
		rec.OrderID = int64(e.Update.OrderID)
		rec.Status = string(e.Update.Status)
	case connection.ConnectionConfirmed:
		rec.Payload = mustJSON(e.Payload)
	case connection.MalformedEvent:
		rec.Payload = mustJSON(map[string]string{"event": e.Event, "error": errString(e.Err)})
	case connection.ConnectionError:
		rec.Payload = mustJSON(map[string]string{"error": errString(e.Err)})
	case connection.Disconnected:
		rec.Payload = mustJSON(map[string]string{"reason": e.Reason})
	case connection.ReconnectExhausted:
		rec.Payload = mustJSON(map[string]int{"attempts": e.Attempts})
	}

	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage(`{}`)
	}
	return rec
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type nopNotifier struct{}

func (nopNotifier) Prepare(context.Context) {}
func (nopNotifier) Notify()                 {}
