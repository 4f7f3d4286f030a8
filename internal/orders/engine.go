package orders

import (
	"cmp"
	"slices"
	"time"

	"github.com/rickgao/orderboard/internal/model"
)

// Engine holds the NEW and COMPLETED display lists and the creation-time
// ledger. Both lists are kept strictly ascending by order id.
type Engine struct {
	clock func() time.Time
	loc   *time.Location

	newList       []model.Order
	completedList []model.Order

	// Order id → creation time. Entries live for the whole process.
	ledger map[int64]time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for day scoping.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLocation sets the location whose calendar day counts as "today".
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:  time.Now,
		loc:    time.Local,
		ledger: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOrderResult describes what ApplyNewOrder did.
type NewOrderResult struct {
	Order model.Order

	// Accepted is true when the order is today's and not terminal. Accepted
	// orders trigger the notification sound even if already listed.
	Accepted bool

	// Inserted is true when the order was added to a list.
	Inserted bool
}

// ApplySnapshot replaces both lists with the contents of a full snapshot.
func (e *Engine) ApplySnapshot(raw []model.RawOrder) {
	now := e.now()

	newList := make([]model.Order, 0, len(raw))
	completedList := make([]model.Order, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))

	for _, r := range raw {
		o := model.Normalize(r, now)
		e.ledger[o.ID] = o.CreatedAt

		if !model.IsToday(o.CreatedAt, now) {
			continue
		}
		if _, dup := seen[o.ID]; dup {
			continue
		}

		switch o.Status {
		case model.StatusNew:
			newList = append(newList, o)
		case model.StatusCompleted:
			completedList = append(completedList, o)
		default:
			continue
		}
		seen[o.ID] = struct{}{}
	}

	slices.SortStableFunc(newList, byID)
	slices.SortStableFunc(completedList, byID)

	e.newList = newList
	e.completedList = completedList
}

// ApplyNewOrder adds a single order announced by the server.
func (e *Engine) ApplyNewOrder(raw model.RawOrder) NewOrderResult {
	now := e.now()
	o := model.Normalize(raw, now)

	if _, ok := e.ledger[o.ID]; !ok {
		e.ledger[o.ID] = o.CreatedAt
	}

	res := NewOrderResult{Order: o}
	if !model.IsToday(o.CreatedAt, now) || !o.Status.Visible() {
		return res
	}
	res.Accepted = true

	if e.listed(o.ID) {
		return res
	}

	if o.Status == model.StatusCompleted {
		insertSorted(&e.completedList, o)
	} else {
		insertSorted(&e.newList, o)
	}
	res.Inserted = true
	return res
}

// ApplyStatusUpdate moves an order between lists according to its new
// status. at stamps completedAt; a zero value means now. It reports whether
// either list changed.
func (e *Engine) ApplyStatusUpdate(id int64, status model.Status, at time.Time) bool {
	now := e.now()
	if at.IsZero() {
		at = now
	}

	createdAt, known := e.ledger[id]
	today := known && model.IsToday(createdAt, now)

	switch {
	case status.Terminal():
		_, fromNew := removeByID(&e.newList, id)
		_, fromCompleted := removeByID(&e.completedList, id)
		return fromNew || fromCompleted
	case status == model.StatusCompleted:
		return e.move(id, &e.newList, &e.completedList, status, today, createdAt, at)
	case status == model.StatusNew:
		return e.move(id, &e.completedList, &e.newList, status, today, createdAt, at)
	default:
		return false
	}
}

// move takes id out of from and, when today, puts it into to. The held
// record is reused when there is one; otherwise a placeholder is made.
func (e *Engine) move(id int64, from, to *[]model.Order, status model.Status, today bool, createdAt, at time.Time) bool {
	held, wasHeld := removeByID(from, id)
	if !today {
		return wasHeld
	}
	if _, found := findByID(*to, id); found {
		return wasHeld
	}

	o := model.Placeholder(id, status, createdAt)
	if wasHeld {
		o = held
		o.Status = status
	}
	if status == model.StatusCompleted {
		completedAt := at
		o.CompletedAt = &completedAt
	} else {
		o.CompletedAt = nil
	}

	insertSorted(to, o)
	return true
}

// Prune drops orders that are no longer today's. Called on day rollover.
func (e *Engine) Prune() bool {
	now := e.now()
	stale := func(o model.Order) bool { return !model.IsToday(o.CreatedAt, now) }

	before := len(e.newList) + len(e.completedList)
	e.newList = slices.DeleteFunc(e.newList, stale)
	e.completedList = slices.DeleteFunc(e.completedList, stale)
	return len(e.newList)+len(e.completedList) != before
}

// NewOrders returns a copy of the NEW list.
func (e *Engine) NewOrders() []model.Order {
	return slices.Clone(e.newList)
}

// CompletedOrders returns a copy of the COMPLETED list.
func (e *Engine) CompletedOrders() []model.Order {
	return slices.Clone(e.completedList)
}

// CreatedAt returns the ledger entry for id.
func (e *Engine) CreatedAt(id int64) (time.Time, bool) {
	t, ok := e.ledger[id]
	return t, ok
}

// LedgerSize returns the number of ids in the creation-time ledger.
func (e *Engine) LedgerSize() int {
	return len(e.ledger)
}

func (e *Engine) now() time.Time {
	return e.clock().In(e.loc)
}

func (e *Engine) listed(id int64) bool {
	if _, ok := findByID(e.newList, id); ok {
		return true
	}
	_, ok := findByID(e.completedList, id)
	return ok
}

func byID(a, b model.Order) int {
	return cmp.Compare(a.ID, b.ID)
}

func findByID(list []model.Order, id int64) (int, bool) {
	return slices.BinarySearchFunc(list, id, func(o model.Order, target int64) int {
		return cmp.Compare(o.ID, target)
	})
}

func insertSorted(list *[]model.Order, o model.Order) {
	i, found := findByID(*list, o.ID)
	if found {
		return
	}
	*list = slices.Insert(*list, i, o)
}

func removeByID(list *[]model.Order, id int64) (model.Order, bool) {
	i, found := findByID(*list, id)
	if !found {
		return model.Order{}, false
	}
	o := (*list)[i]
	*list = slices.Delete(*list, i, i+1)
	return o, true
}
