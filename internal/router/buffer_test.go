package router

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_FIFOAcrossGrowth(t *testing.T) {
	tests := []struct {
		name        string
		initial     int
		items       int
		wantResizes int // minimum
	}{
		{"no growth", 100, 5, 0},
		{"grow at 70 percent", 10, 7, 1},
		{"many grows", 4, 100, 3},
		{"capacity one", 1, 20, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewGrowableBuffer[int](tt.initial)
			for i := 0; i < tt.items; i++ {
				if !buf.Send(i) {
					t.Fatalf("Send(%d) returned false", i)
				}
			}

			stats := buf.Stats()
			if stats.Count != tt.items {
				t.Errorf("Count = %d, want %d", stats.Count, tt.items)
			}
			if stats.ResizeCount < tt.wantResizes {
				t.Errorf("ResizeCount = %d, want >= %d", stats.ResizeCount, tt.wantResizes)
			}

			for i := 0; i < tt.items; i++ {
				got, ok := buf.TryReceive()
				if !ok || got != i {
					t.Fatalf("TryReceive() = %d, %v; want %d, true", got, ok, i)
				}
			}
			if _, ok := buf.TryReceive(); ok {
				t.Error("TryReceive on empty buffer returned true")
			}
		})
	}
}

func TestGrowableBuffer_GrowWhileWrapped(t *testing.T) {
	buf := NewGrowableBuffer[int](5)

	buf.Send(1)
	buf.Send(2)
	buf.TryReceive()
	buf.TryReceive()

	// head is now mid-ring; these wrap and then force a grow
	for i := 3; i <= 8; i++ {
		buf.Send(i)
	}

	got := buf.DrainTo(0)
	want := []int{3, 4, 5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("DrainTo = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	if items := buf.DrainTo(4); len(items) != 4 || items[0] != 0 || items[3] != 3 {
		t.Errorf("DrainTo(4) = %v", items)
	}
	if buf.Len() != 6 {
		t.Errorf("Len() = %d, want 6", buf.Len())
	}
	if items := buf.DrainTo(0); len(items) != 6 || items[0] != 4 {
		t.Errorf("DrainTo(0) = %v", items)
	}
	if items := buf.DrainTo(0); items != nil {
		t.Errorf("DrainTo on empty = %v, want nil", items)
	}
}

func TestGrowableBuffer_ReceiveWakesOnSend(t *testing.T) {
	buf := NewGrowableBuffer[string](2)
	received := make(chan string, 1)

	go func() {
		if v, ok := buf.Receive(); ok {
			received <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send("order")

	select {
	case v := <-received:
		if v != "order" {
			t.Errorf("received %q, want %q", v, "order")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestGrowableBuffer_ReceiveBatch(t *testing.T) {
	buf := NewGrowableBuffer[int](4)
	batches := make(chan []int, 1)

	go func() {
		batches <- buf.ReceiveBatch(3)
	}()

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		buf.Send(i)
	}

	select {
	case batch := <-batches:
		if len(batch) == 0 || len(batch) > 3 || batch[0] != 0 {
			t.Errorf("batch = %v, want 1..3 items starting at 0", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch")
	}
}

func TestGrowableBuffer_Close(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send should return false after Close")
	}

	// Remaining items are still delivered.
	if v, ok := buf.Receive(); !ok || v != 1 {
		t.Errorf("Receive() = %d, %v; want 1, true", v, ok)
	}
	if batch := buf.ReceiveBatch(0); len(batch) != 1 || batch[0] != 2 {
		t.Errorf("ReceiveBatch() = %v, want [2]", batch)
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive should return false when closed and empty")
	}
	if batch := buf.ReceiveBatch(10); batch != nil {
		t.Errorf("ReceiveBatch on closed empty buffer = %v, want nil", batch)
	}
}

func TestGrowableBuffer_CloseUnblocksReceivers(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	done := make(chan struct{}, 2)

	go func() {
		buf.Receive()
		done <- struct{}{}
	}()
	go func() {
		buf.ReceiveBatch(5)
		done <- struct{}{}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Close did not unblock receivers")
		}
	}
}

func TestGrowableBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](8)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
	}()

	received := make([]int, 0, numItems)
	go func() {
		defer wg.Done()
		for len(received) < numItems {
			v, ok := buf.Receive()
			if !ok {
				return
			}
			received = append(received, v)
		}
	}()

	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("received[%d] = %d, single sender order not preserved", i, v)
		}
	}
}

func TestGrowableBuffer_Stats(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	stats := buf.Stats()
	if stats.Count != 0 || stats.Capacity != 10 || stats.TotalReceived != 0 || stats.TotalSent != 0 {
		t.Errorf("initial stats incorrect: %+v", stats)
	}

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()

	stats = buf.Stats()
	if stats.Count != 1 || stats.TotalReceived != 3 || stats.TotalSent != 2 || stats.HighWater != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNewGrowableBuffer_MinCapacity(t *testing.T) {
	for _, n := range []int{0, -5} {
		if got := NewGrowableBuffer[int](n).Cap(); got != 1 {
			t.Errorf("Cap() = %d, want 1 for initial capacity %d", got, n)
		}
	}
}
