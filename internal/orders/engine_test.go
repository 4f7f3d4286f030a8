package orders

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/rickgao/orderboard/internal/model"
)

var testNow = time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
	)
}

func rawOrder(id int64, status string, createdAt time.Time) model.RawOrder {
	return model.RawOrder{
		ID:        model.FlexInt(id),
		Status:    model.FlexString(status),
		CreatedAt: model.RawTime(createdAt.Format(time.RFC3339)),
	}
}

func ids(list []model.Order) []int64 {
	out := make([]int64, 0, len(list))
	for _, o := range list {
		out = append(out, o.ID)
	}
	return out
}

func assertIDs(t *testing.T, name string, list []model.Order, want ...int64) {
	t.Helper()
	got := ids(list)
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}
}

func today(hour int) time.Time {
	return time.Date(2024, 3, 10, hour, 0, 0, 0, time.UTC)
}

func TestApplySnapshot_PartitionsAndSorts(t *testing.T) {
	e := newTestEngine(t)

	e.ApplySnapshot([]model.RawOrder{
		rawOrder(9, "new", today(9)),
		rawOrder(2, "completed", today(8)),
		rawOrder(4, "new", today(10)),
		rawOrder(5, "cancelled", today(10)),
		rawOrder(6, "delivered", today(10)),
		rawOrder(1, "completed", today(7)),
	})

	assertIDs(t, "NEW", e.NewOrders(), 4, 9)
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 1, 2)

	for _, id := range []int64{1, 2, 4, 5, 6, 9} {
		if _, ok := e.CreatedAt(id); !ok {
			t.Errorf("ledger missing id %d", id)
		}
	}
}

func TestApplySnapshot_DayScopeBoundary(t *testing.T) {
	e := newTestEngine(t)

	e.ApplySnapshot([]model.RawOrder{
		rawOrder(1, "new", time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC)),
		rawOrder(2, "new", time.Date(2024, 3, 10, 0, 0, 1, 0, time.UTC)),
		rawOrder(3, "completed", time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC)),
	})

	assertIDs(t, "NEW", e.NewOrders(), 2)
	assertIDs(t, "COMPLETED", e.CompletedOrders())

	// Yesterday's orders still land in the ledger.
	if _, ok := e.CreatedAt(1); !ok {
		t.Error("ledger should hold yesterday's order 1")
	}
}

func TestApplySnapshot_DuplicateIDs(t *testing.T) {
	e := newTestEngine(t)

	e.ApplySnapshot([]model.RawOrder{
		rawOrder(3, "new", today(9)),
		rawOrder(3, "new", today(9)),
		rawOrder(3, "completed", today(9)),
	})

	assertIDs(t, "NEW", e.NewOrders(), 3)
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestApplySnapshot_Authority(t *testing.T) {
	e := newTestEngine(t)

	e.ApplySnapshot([]model.RawOrder{
		rawOrder(1, "new", today(9)),
		rawOrder(2, "completed", today(9)),
	})
	e.ApplyNewOrder(rawOrder(3, "new", today(10)))

	e.ApplySnapshot([]model.RawOrder{
		rawOrder(3, "new", today(10)),
	})

	assertIDs(t, "NEW", e.NewOrders(), 3)
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestApplyNewOrder_Dedup(t *testing.T) {
	e := newTestEngine(t)
	raw := rawOrder(7, "new", today(11))

	first := e.ApplyNewOrder(raw)
	second := e.ApplyNewOrder(raw)

	if !first.Accepted || !first.Inserted {
		t.Errorf("first = %+v, want accepted and inserted", first)
	}
	if !second.Accepted {
		t.Error("duplicate should still be accepted for notification")
	}
	if second.Inserted {
		t.Error("duplicate should not be inserted")
	}
	assertIDs(t, "NEW", e.NewOrders(), 7)
}

func TestApplyNewOrder_NotToday(t *testing.T) {
	e := newTestEngine(t)

	res := e.ApplyNewOrder(rawOrder(8, "new", time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC)))

	if res.Accepted || res.Inserted {
		t.Errorf("res = %+v, want rejected", res)
	}
	assertIDs(t, "NEW", e.NewOrders())
	if _, ok := e.CreatedAt(8); !ok {
		t.Error("ledger should record rejected order's creation time")
	}
}

func TestApplyNewOrder_MissingCreatedAtIsToday(t *testing.T) {
	e := newTestEngine(t)

	res := e.ApplyNewOrder(model.RawOrder{OrderID: 4})

	if !res.Inserted {
		t.Fatalf("res = %+v, want inserted", res)
	}
	if !res.Order.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want now", res.Order.CreatedAt)
	}
	assertIDs(t, "NEW", e.NewOrders(), 4)
}

func TestApplyNewOrder_AlreadyCompleted(t *testing.T) {
	e := newTestEngine(t)
	e.ApplySnapshot([]model.RawOrder{rawOrder(5, "completed", today(9))})

	res := e.ApplyNewOrder(rawOrder(5, "new", today(9)))

	if res.Inserted {
		t.Error("order already on the COMPLETED list must not be duplicated into NEW")
	}
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 5)
}

func TestApplyNewOrder_TerminalIgnored(t *testing.T) {
	e := newTestEngine(t)

	res := e.ApplyNewOrder(rawOrder(6, "cancelled", today(9)))

	if res.Accepted || res.Inserted {
		t.Errorf("res = %+v, want ignored", res)
	}
}

func TestApplyNewOrder_LedgerKeepsSnapshotTime(t *testing.T) {
	e := newTestEngine(t)
	e.ApplySnapshot([]model.RawOrder{rawOrder(5, "cancelled", today(8))})

	e.ApplyNewOrder(rawOrder(5, "new", today(12)))

	got, _ := e.CreatedAt(5)
	if !got.Equal(today(8)) {
		t.Errorf("ledger = %v, want snapshot time %v", got, today(8))
	}
}

func TestApplyStatusUpdate_Transitions(t *testing.T) {
	e := newTestEngine(t)
	e.ApplySnapshot([]model.RawOrder{
		{ID: 5, Status: "new", PhoneNumber: "555", IDStore: 2, CreatedAt: model.RawTime(today(9).Format(time.RFC3339))},
	})

	completedAt := today(13)
	if !e.ApplyStatusUpdate(5, model.StatusCompleted, completedAt) {
		t.Fatal("expected change")
	}
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 5)

	got := e.CompletedOrders()[0]
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.PhoneNumber != "555" || got.StoreID != 2 {
		t.Errorf("held record fields lost: %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completedAt)
	}

	if !e.ApplyStatusUpdate(5, model.StatusNew, time.Time{}) {
		t.Fatal("expected change back to new")
	}
	assertIDs(t, "NEW", e.NewOrders(), 5)
	assertIDs(t, "COMPLETED", e.CompletedOrders())
	if e.NewOrders()[0].CompletedAt != nil {
		t.Error("CompletedAt should be cleared on return to new")
	}

	if !e.ApplyStatusUpdate(5, model.StatusCancelled, time.Time{}) {
		t.Fatal("expected removal")
	}
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestApplyStatusUpdate_CompleteThenCancel(t *testing.T) {
	e := newTestEngine(t)
	e.ApplySnapshot([]model.RawOrder{rawOrder(5, "new", today(9))})

	e.ApplyStatusUpdate(5, model.StatusCompleted, time.Time{})
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 5)
	if e.CompletedOrders()[0].Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", e.CompletedOrders()[0].Status)
	}

	e.ApplyStatusUpdate(5, model.StatusCancelled, time.Time{})
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestApplyStatusUpdate_Placeholder(t *testing.T) {
	e := newTestEngine(t)
	// Known through a snapshot, but not visible because it was cancelled.
	e.ApplySnapshot([]model.RawOrder{rawOrder(11, "cancelled", today(9))})

	if !e.ApplyStatusUpdate(11, model.StatusCompleted, time.Time{}) {
		t.Fatal("expected placeholder insert")
	}

	got := e.CompletedOrders()
	assertIDs(t, "COMPLETED", got, 11)
	if got[0].PhoneNumber != "" || got[0].StoreID != 0 {
		t.Errorf("placeholder should have empty phone and store: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(today(9)) {
		t.Errorf("placeholder CreatedAt = %v, want ledger time", got[0].CreatedAt)
	}
}

func TestApplyStatusUpdate_UnknownIDNotFabricated(t *testing.T) {
	e := newTestEngine(t)

	if e.ApplyStatusUpdate(42, model.StatusNew, time.Time{}) {
		t.Error("unknown id should not change lists")
	}
	if e.ApplyStatusUpdate(42, model.StatusCompleted, time.Time{}) {
		t.Error("unknown id should not change lists")
	}
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestApplyStatusUpdate_YesterdayRemovedNotReinserted(t *testing.T) {
	e := NewEngine(WithClock(func() time.Time { return today(9) }), WithLocation(time.UTC))
	e.ApplySnapshot([]model.RawOrder{rawOrder(3, "new", today(1))})

	// The day rolls over without a prune.
	e.clock = func() time.Time { return time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC) }

	if !e.ApplyStatusUpdate(3, model.StatusCompleted, time.Time{}) {
		t.Fatal("expected removal from NEW")
	}
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestApplyStatusUpdate_TerminalUnknownIsNoop(t *testing.T) {
	e := newTestEngine(t)

	if e.ApplyStatusUpdate(99, model.StatusDelivered, time.Time{}) {
		t.Error("terminal update for unseen id should be a no-op")
	}
	if e.ApplyStatusUpdate(99, model.Status("cooking"), time.Time{}) {
		t.Error("unknown status should be a no-op")
	}
}

func TestApplyStatusUpdate_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	e.ApplySnapshot([]model.RawOrder{rawOrder(5, "new", today(9)), rawOrder(6, "new", today(9))})

	e.ApplyStatusUpdate(5, model.StatusCompleted, time.Time{})
	if e.ApplyStatusUpdate(5, model.StatusCompleted, time.Time{}) {
		t.Error("replayed update should report no change")
	}
	e.ApplyStatusUpdate(6, model.StatusDelivered, time.Time{})
	if e.ApplyStatusUpdate(6, model.StatusDelivered, time.Time{}) {
		t.Error("replayed removal should report no change")
	}

	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 5)
}

func TestEndToEndScenario(t *testing.T) {
	e := newTestEngine(t)

	e.ApplySnapshot([]model.RawOrder{rawOrder(3, "new", today(9))})
	assertIDs(t, "NEW", e.NewOrders(), 3)

	e.ApplyNewOrder(rawOrder(7, "new", today(10)))
	assertIDs(t, "NEW", e.NewOrders(), 3, 7)

	e.ApplyStatusUpdate(3, model.StatusCompleted, time.Time{})
	assertIDs(t, "NEW", e.NewOrders(), 7)
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 3)

	e.ApplyStatusUpdate(7, model.StatusCancelled, time.Time{})
	assertIDs(t, "NEW", e.NewOrders())
	assertIDs(t, "COMPLETED", e.CompletedOrders(), 3)
}

func TestPrune(t *testing.T) {
	now := today(22)
	e := NewEngine(WithClock(func() time.Time { return now }), WithLocation(time.UTC))
	e.ApplySnapshot([]model.RawOrder{
		rawOrder(1, "new", today(9)),
		rawOrder(2, "completed", today(10)),
	})

	if e.Prune() {
		t.Error("prune on the same day should not change anything")
	}

	now = time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC)
	e.ApplyNewOrder(rawOrder(3, "new", now))

	if !e.Prune() {
		t.Error("expected prune to drop yesterday's orders")
	}
	assertIDs(t, "NEW", e.NewOrders(), 3)
	assertIDs(t, "COMPLETED", e.CompletedOrders())
}

func TestNewOrders_ReturnsCopy(t *testing.T) {
	e := newTestEngine(t)
	e.ApplySnapshot([]model.RawOrder{rawOrder(1, "new", today(9))})

	list := e.NewOrders()
	list[0].ID = 100

	assertIDs(t, "NEW", e.NewOrders(), 1)
}

// TestInvariants_RandomSequence drives the engine with a random mix of events
// and checks the list invariants after every step.
func TestInvariants_RandomSequence(t *testing.T) {
	statuses := []model.Status{model.StatusNew, model.StatusCompleted, model.StatusCancelled, model.StatusDelivered}

	for seed := int64(1); seed <= 20; seed++ {
		t.Run(strconv.FormatInt(seed, 10), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			e := newTestEngine(t)

			created := func() time.Time {
				if rng.Intn(5) == 0 {
					return time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
				}
				return today(rng.Intn(14))
			}

			for step := 0; step < 300; step++ {
				id := int64(rng.Intn(25))
				switch rng.Intn(10) {
				case 0:
					snap := make([]model.RawOrder, rng.Intn(10))
					for i := range snap {
						snap[i] = rawOrder(int64(rng.Intn(25)), string(statuses[rng.Intn(4)]), created())
					}
					e.ApplySnapshot(snap)
				case 1, 2, 3:
					e.ApplyNewOrder(rawOrder(id, string(statuses[rng.Intn(2)]), created()))
				default:
					e.ApplyStatusUpdate(id, statuses[rng.Intn(4)], time.Time{})
				}
				checkInvariants(t, e)
			}
		})
	}
}

func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()
	seen := make(map[int64]string)

	check := func(name string, list []model.Order, want model.Status) {
		for i, o := range list {
			if i > 0 && list[i-1].ID >= o.ID {
				t.Fatalf("%s not strictly ascending: %v", name, ids(list))
			}
			if prev, ok := seen[o.ID]; ok {
				t.Fatalf("id %d in both %s and %s", o.ID, prev, name)
			}
			seen[o.ID] = name
			if o.Status != want {
				t.Fatalf("%s holds id %d with status %q", name, o.ID, o.Status)
			}
			if !model.IsToday(o.CreatedAt, testNow) {
				t.Fatalf("%s holds id %d created %v, not today", name, o.ID, o.CreatedAt)
			}
		}
	}

	check("NEW", e.newList, model.StatusNew)
	check("COMPLETED", e.completedList, model.StatusCompleted)
}
