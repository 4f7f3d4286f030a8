package display

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/orderboard/internal/model"
)

// Store holds the current Board and notifies subscribers of changes.
// It is safe for concurrent use.
type Store struct {
	logger      *slog.Logger
	reconnector Reconnector
	clock       func() time.Time

	mu     sync.RWMutex
	board  Board
	subs   map[int]chan Board
	nextID int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithReconnector sets the target of Reconnect.
func WithReconnector(r Reconnector) StoreOption {
	return func(s *Store) {
		s.reconnector = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for UpdatedAt.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore creates an empty, disconnected board.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger: slog.Default(),
		clock:  time.Now,
		subs:   make(map[int]chan Board),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.board = Board{
		NewOrders:       []model.Order{},
		CompletedOrders: []model.Order{},
		UpdatedAt:       s.clock(),
	}
	return s
}

// Snapshot returns a copy of the current board.
func (s *Store) Snapshot() Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Publish replaces both lists. A publish means data arrived, so loading
// and error are cleared.
func (s *Store) Publish(newOrders, completedOrders []model.Order) {
	s.update(func(b *Board) {
		b.NewOrders = nonNil(newOrders)
		b.CompletedOrders = nonNil(completedOrders)
		b.IsLoading = false
		b.Error = ""
	})
}

// SetLoading marks a (re)connect in progress. Starting to load clears a
// previous error.
func (s *Store) SetLoading(loading bool) {
	s.update(func(b *Board) {
		b.IsLoading = loading
		if loading {
			b.Error = ""
		}
	})
}

// SetError enters the connect-failure state: both lists are cleared and
// loading stops.
func (s *Store) SetError(msg string) {
	s.update(func(b *Board) {
		b.Error = msg
		b.IsLoading = false
		b.NewOrders = []model.Order{}
		b.CompletedOrders = []model.Order{}
	})
}

// SetConnected updates the connected indicator.
func (s *Store) SetConnected(connected bool) {
	s.update(func(b *Board) {
		b.Connected = connected
	})
}

// Reconnect asks the Connection Manager for a manual reconnect. A failure
// puts the board into the error state and is returned.
func (s *Store) Reconnect(ctx context.Context) error {
	if s.reconnector == nil {
		return ErrNoReconnector
	}

	s.SetLoading(true)
	if err := s.reconnector.ForceReconnect(ctx); err != nil {
		s.logger.Warn("manual reconnect failed", "error", err)
		s.SetError(err.Error())
		return err
	}

	s.logger.Info("manual reconnect succeeded")
	return nil
}

// Subscribe returns a channel that receives the latest board after every
// change. Slow subscribers only ever see the newest board. The returned
// func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Board, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Board, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Store) update(fn func(*Board)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.board)
	s.board.UpdatedAt = s.clock()

	b := s.copyLocked()
	for _, ch := range s.subs {
		// Replace any board the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- b:
		default:
		}
	}
}

func (s *Store) copyLocked() Board {
	b := s.board
	b.NewOrders = slices.Clone(s.board.NewOrders)
	b.CompletedOrders = slices.Clone(s.board.CompletedOrders)
	return b
}

func nonNil(list []model.Order) []model.Order {
	if list == nil {
		return []model.Order{}
	}
	return list
}
