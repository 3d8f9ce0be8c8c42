package msgqueue

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/internal/memory"
	"github.com/x64dbg/bridge/wire"
)

func mustSend(t *testing.T, q *Queue, kind int32, p1, p2 uint64) {
	t.Helper()
	ok, err := q.Send(kind, p1, p2)
	if err != nil || !ok {
		t.Fatalf("Send(%d) = %v, %v", kind, ok, err)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := New()
	defer q.Close()

	for i := int32(1); i <= 5; i++ {
		mustSend(t, q, i, uint64(i)*10, uint64(i)*100)
	}
	for i := int32(1); i <= 5; i++ {
		m, ok := q.TryReceive()
		if !ok {
			t.Fatalf("TryReceive %d: empty", i)
		}
		if m.Kind != i || m.Param1 != uint64(i)*10 || m.Param2 != uint64(i)*100 {
			t.Errorf("message %d = %v", i, m)
		}
	}
	if _, ok := q.TryReceive(); ok {
		t.Error("TryReceive on empty queue returned a message")
	}
}

func TestQueue_LIFO(t *testing.T) {
	q := New(WithDiscipline(LIFO))
	defer q.Close()

	for i := int32(1); i <= 3; i++ {
		mustSend(t, q, i, 0, 0)
	}
	for _, want := range []int32{3, 2, 1} {
		m, _ := q.TryReceive()
		if m.Kind != want {
			t.Errorf("Kind = %d, want %d", m.Kind, want)
		}
	}
	if q.Discipline() != LIFO || q.Discipline().String() != "lifo" {
		t.Errorf("Discipline = %v", q.Discipline())
	}
}

func TestQueue_BoundedScenario(t *testing.T) {
	q := New(WithCapacity(2))
	defer q.Close()

	mustSend(t, q, 'A', 0, 0)
	mustSend(t, q, 'B', 0, 0)

	ok, err := q.Send('C', 0, 0)
	if err != nil || ok {
		t.Fatalf("Send to full queue = %v, %v; want false, nil", ok, err)
	}

	m, _ := q.TryReceive()
	if m.Kind != 'A' {
		t.Fatalf("first receive = %c, want A", m.Kind)
	}
	mustSend(t, q, 'C', 0, 0)

	for _, want := range []int32{'B', 'C'} {
		m, ok := q.TryReceive()
		if !ok || m.Kind != want {
			t.Errorf("receive = %c, %v; want %c", m.Kind, ok, want)
		}
	}
}

func TestQueue_BackpressureLeavesStateUnchanged(t *testing.T) {
	const capacity = 4
	q := New(WithCapacity(capacity))
	defer q.Close()

	for i := 0; i < capacity; i++ {
		mustSend(t, q, int32(i), 0, 0)
	}
	live := q.entries.Len()
	if ok, _ := q.Send(99, 0, 0); ok {
		t.Fatal("Send beyond capacity accepted")
	}
	if q.Len() != capacity || q.entries.Len() != live {
		t.Errorf("Len=%d entries=%d after rejection, want %d/%d", q.Len(), q.entries.Len(), capacity, live)
	}
	for i := 0; i < capacity; i++ {
		m, _ := q.TryReceive()
		if m.Kind != int32(i) {
			t.Errorf("receive %d = %d", i, m.Kind)
		}
	}
}

func TestQueue_EntriesReused(t *testing.T) {
	q := New(WithBatchSize(4), WithMaxSlabs(1))
	defer q.Close()

	for round := 0; round < 10; round++ {
		for i := 0; i < 4; i++ {
			mustSend(t, q, int32(i), 0, 0)
		}
		for i := 0; i < 4; i++ {
			q.TryReceive()
		}
	}
	if q.entries.Slabs() != 1 {
		t.Errorf("Slabs = %d, want 1", q.entries.Slabs())
	}
}

func TestQueue_AllocationFailure(t *testing.T) {
	q := New(WithBatchSize(2), WithMaxSlabs(1))
	defer q.Close()

	mustSend(t, q, 1, 0, 0)
	mustSend(t, q, 2, 0, 0)
	ok, err := q.Send(3, 0, 0)
	if ok || err == nil {
		t.Fatalf("Send = %v, %v; want allocation error", ok, err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindAllocation {
		t.Errorf("error = %v, want allocation kind", err)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestQueue_WaitReceive(t *testing.T) {
	q := New()
	defer q.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = q.Send(7, 1, 2)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := q.WaitReceive(ctx)
	if err != nil {
		t.Fatalf("WaitReceive: %v", err)
	}
	if m.Kind != 7 || m.Param1 != 1 || m.Param2 != 2 {
		t.Errorf("message = %v", m)
	}
}

func TestQueue_WaitReceiveCancel(t *testing.T) {
	q := New()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.WaitReceive(ctx)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := New()

	const waiters = 3
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := q.WaitReceive(context.Background())
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			if !stderrors.Is(err, ErrClosed) {
				t.Errorf("waiter err = %v, want ErrClosed", err)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter not woken by Close")
		}
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	var drained []int32
	q := New(WithDrainHandler(func(m Message) { drained = append(drained, m.Kind) }))

	mustSend(t, q, 1, 0, 0)
	mustSend(t, q, 2, 0, 0)
	q.Close()
	q.Close()

	if len(drained) != 2 || drained[0] != 1 || drained[1] != 2 {
		t.Errorf("drained = %v, want [1 2]", drained)
	}
	if ok, err := q.Send(3, 0, 0); ok || !stderrors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, %v", ok, err)
	}
	if _, ok := q.TryReceive(); ok {
		t.Error("TryReceive after Close returned a message")
	}
	if !q.Closed() {
		t.Error("Closed = false")
	}
}

func TestQueue_ConcurrentExactlyOnce(t *testing.T) {
	const producers, perProducer = 4, 500
	q := New(WithCapacity(64))
	defer q.Close()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; {
				ok, err := q.Send(int32(p), uint64(i), 0)
				if err != nil {
					t.Errorf("Send: %v", err)
					return
				}
				if ok {
					i++
				}
			}
		}(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	next := make([]uint64, producers)
	for n := 0; n < producers*perProducer; n++ {
		m, err := q.WaitReceive(ctx)
		if err != nil {
			t.Fatalf("WaitReceive after %d messages: %v", n, err)
		}
		if m.Param1 != next[m.Kind] {
			t.Fatalf("producer %d: got %d, want %d", m.Kind, m.Param1, next[m.Kind])
		}
		next[m.Kind]++
	}
	wg.Wait()
	if q.Len() != 0 {
		t.Errorf("Len = %d after drain", q.Len())
	}
}

func TestQueue_DrainToWire(t *testing.T) {
	heap := memory.NewHeap(memory.NewLinear(1))
	b := wire.NewBoundary(heap.Memory(), heap)
	q := New()
	defer q.Close()

	for i := int32(1); i <= 5; i++ {
		mustSend(t, q, i, uint64(i), 0)
	}
	h, err := q.DrainToWire(b, 3)
	if err != nil {
		t.Fatalf("DrainToWire: %v", err)
	}
	if h.Count != 3 || h.Size != 3*MessageRecordSize {
		t.Fatalf("handle = %+v", h)
	}
	msgs, err := wire.ToSlice(b, Codec, h, true)
	if err != nil {
		t.Fatalf("ToSlice: %v", err)
	}
	for i, m := range msgs {
		if m.Kind != int32(i+1) {
			t.Errorf("msgs[%d].Kind = %d", i, m.Kind)
		}
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
	if heap.Live() != 0 {
		t.Errorf("%d buffers leaked", heap.Live())
	}
}

func TestMessageLayout(t *testing.T) {
	if MessageRecordSize != 24 {
		t.Errorf("MessageRecordSize = %d, want 24", MessageRecordSize)
	}
	for field, want := range map[string]uint32{"kind": 0, "param1": 8, "param2": 16} {
		if got := messageLayout.Offset(field); got != want {
			t.Errorf("offset %s = %d, want %d", field, got, want)
		}
	}
}

func TestParseDiscipline(t *testing.T) {
	tests := []struct {
		in   string
		want Discipline
		ok   bool
	}{
		{"fifo", FIFO, true},
		{"", FIFO, true},
		{"LIFO", LIFO, true},
		{"stack", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDiscipline(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDiscipline(%q) = %v, %v", tt.in, got, ok)
		}
	}
}
