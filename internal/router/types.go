package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rickgao/orderboard/internal/connection"
	"github.com/rickgao/orderboard/internal/model"
)

// RouterConfig holds configuration for the Event Router.
type RouterConfig struct {
	RolloverInterval  time.Duration  // Default: 1m
	JournalBufferSize int            // Initial journal buffer size; 0 disables journaling
	Location          *time.Location // Zone for zone-less update timestamps
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RolloverInterval:  time.Minute,
		JournalBufferSize: 0,
		Location:          time.Local,
	}
}

// Source delivers feed events. connection.Manager satisfies it.
type Source interface {
	Connect(ctx context.Context) error
	Events() <-chan connection.Event
}

// Board receives presentation state. display.Store satisfies it.
type Board interface {
	Publish(newOrders, completedOrders []model.Order)
	SetLoading(loading bool)
	SetError(msg string)
	SetConnected(connected bool)
}

// Notifier plays the new-order sound. audio.Notifier satisfies it.
type Notifier interface {
	// Prepare starts capability negotiation; repeated calls are no-ops.
	Prepare(ctx context.Context)
	// Notify requests playback without blocking.
	Notify()
}

// EventRecord is a journal copy of one feed event.
type EventRecord struct {
	Event      string
	Generation uint64
	SessionID  string
	OrderID    int64  // 0 when the event is not about one order
	Status     string // Raw status for order events
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	EventsReceived int64
	EventsApplied  int64 // Order events that changed a list
	Notifications  int64
	UnknownStatus  int64
	ParseErrors    int64
	Publishes      int64
	Prunes         int64
	JournalBuffer  BufferStats
}
