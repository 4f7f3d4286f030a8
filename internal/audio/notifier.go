package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Notifier plays the new-order sound. Notify never blocks and never fails;
// when no format is playable it is a no-op.
type Notifier struct {
	negotiator  *Negotiator
	player      Player
	logger      *slog.Logger
	playTimeout time.Duration

	requests chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	mu       sync.RWMutex
	selected *Selection
	ready    bool // first negotiation finished
}

// NewNotifier creates a Notifier. Nothing is probed until Prepare.
func NewNotifier(negotiator *Negotiator, player Player, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	playTimeout := negotiator.cfg.PlayTimeout
	if playTimeout <= 0 {
		playTimeout = DefaultConfig().PlayTimeout
	}

	return &Notifier{
		negotiator:  negotiator,
		player:      player,
		logger:      logger,
		playTimeout: playTimeout,
		requests:    make(chan struct{}, 1),
	}
}

// Prepare negotiates a format and starts the playback worker. Only the
// first call has an effect; the worker stops when ctx ends.
func (n *Notifier) Prepare(ctx context.Context) {
	n.once.Do(func() {
		n.wg.Add(1)
		go n.run(ctx)
	})
}

// Notify requests one playback. Requests that arrive while a sound is
// already queued are merged into it.
func (n *Notifier) Notify() {
	select {
	case n.requests <- struct{}{}:
	default:
	}
}

// Selected returns the negotiated asset, if any.
func (n *Notifier) Selected() (Selection, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.selected == nil {
		return Selection{}, false
	}
	return *n.selected, true
}

// Ready reports whether the first negotiation has finished.
func (n *Notifier) Ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ready
}

// Wait blocks until the worker started by Prepare has exited.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) run(ctx context.Context) {
	defer n.wg.Done()

	n.negotiate(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.requests:
			n.play(ctx)
		}
	}
}

func (n *Notifier) negotiate(ctx context.Context) {
	sel, err := n.negotiator.Negotiate(ctx)

	n.mu.Lock()
	n.ready = true
	if err != nil {
		n.selected = nil
	} else {
		n.selected = &sel
	}
	n.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			n.logger.Warn("audio degraded: notifications will be silent", "error", err)
		}
		return
	}
	n.logger.Info("audio format negotiated", "format", sel.Format, "url", sel.URL)
}

// play plays the selected asset. A failure triggers a fresh negotiation
// and one retry with whatever it selects.
func (n *Notifier) play(ctx context.Context) {
	sel, ok := n.Selected()
	if !ok {
		return
	}

	err := n.playOnce(ctx, sel)
	if err == nil || ctx.Err() != nil {
		return
	}

	n.logger.Warn("audio playback failed, re-probing", "format", sel.Format, "error", err)
	n.negotiate(ctx)

	next, ok := n.Selected()
	if !ok {
		return
	}
	if err := n.playOnce(ctx, next); err != nil {
		n.logger.Warn("audio playback failed after re-probe", "format", next.Format, "error", err)
	}
}

func (n *Notifier) playOnce(ctx context.Context, sel Selection) error {
	ctx, cancel := context.WithTimeout(ctx, n.playTimeout)
	defer cancel()
	return n.player.Play(ctx, sel.URL)
}
