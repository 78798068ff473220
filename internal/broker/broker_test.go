package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/life-stream-dev/aiomemq/internal/protocol"
)

// fakeSubscriber records every framed record delivered to it, the
// way a net.Conn-backed session would but without a transport.
type fakeSubscriber struct {
	id string
	mu sync.Mutex
	in [][]byte
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) Deliver(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, append([]byte(nil), b...))
	return nil
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.in))
	copy(out, f.in)
	return out
}

func mustDecode(t *testing.T, record string) protocol.Message {
	t.Helper()
	msg, err := protocol.Decode(record)
	if err != nil {
		t.Fatalf("decode %q: %v", record, err)
	}
	return msg
}

func TestSubscribeRegistersBothDirections(t *testing.T) {
	b := New(100)
	a := newFakeSubscriber("a")

	b.Subscribe(a, "t")

	b.mu.Lock()
	_, forward := b.forward["t"][a]
	_, reverse := b.reverse[a]["t"]
	b.mu.Unlock()

	if !forward || !reverse {
		t.Fatalf("expected both forward and reverse registration, got forward=%v reverse=%v", forward, reverse)
	}
}

func TestPurgeRemovesFromForwardSets(t *testing.T) {
	b := New(100)
	a := newFakeSubscriber("a")
	b.Subscribe(a, "t")

	b.Purge(a)

	b.mu.Lock()
	_, stillForward := b.forward["t"]
	_, stillReverse := b.reverse[a]
	b.mu.Unlock()

	if stillForward {
		t.Error("expected topic's forward set to be gone after purge of its only subscriber")
	}
	if stillReverse {
		t.Error("expected reverse entry to be gone after purge")
	}
}

func TestBasicFanOut(t *testing.T) {
	b := New(100)
	a := newFakeSubscriber("a")
	b.Subscribe(a, "t")

	indexed, recipients := b.Publish(mustDecode(t, `{"command":"send","topic":"t","msg":"hi","delivery":"all"}`))

	if indexed.Index() != 0 {
		t.Errorf("expected first index 0, got %d", indexed.Index())
	}
	if len(recipients) != 1 || recipients[0] != Subscriber(a) {
		t.Fatalf("expected exactly a as recipient, got %v", recipients)
	}
}

func TestReplayWithLastSeen(t *testing.T) {
	b := New(100)
	for i := 0; i < 3; i++ {
		b.Publish(mustDecode(t, fmt.Sprintf(`{"command":"send","topic":"t","msg":"m%d","delivery":"all"}`, i)))
	}

	replayed := b.CatchUp("t", 0)
	if len(replayed) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(replayed))
	}
	if replayed[0].Index() != 1 || replayed[1].Index() != 2 {
		t.Errorf("expected indices 1,2 in order, got %d,%d", replayed[0].Index(), replayed[1].Index())
	}
}

func TestReplayDefaultsLastSeenToMinusOne(t *testing.T) {
	b := New(100)
	b.Publish(mustDecode(t, `{"command":"send","topic":"t","msg":"m","delivery":"all"}`))

	replayed := b.CatchUp("t", -1)
	if len(replayed) != 1 || replayed[0].Index() != 0 {
		t.Fatalf("expected message at index 0 replayed, got %+v", replayed)
	}
}

func TestOneDeliveryIsNotCached(t *testing.T) {
	b := New(100)
	a, c := newFakeSubscriber("a"), newFakeSubscriber("c")
	b.Subscribe(a, "t")
	b.Subscribe(c, "t")

	_, recipients := b.Publish(mustDecode(t, `{"command":"send","topic":"t","msg":"x","delivery":"one"}`))
	if len(recipients) != 1 {
		t.Fatalf("expected exactly one recipient, got %d", len(recipients))
	}

	replayed := b.CatchUp("t", -1)
	if len(replayed) != 0 {
		t.Fatalf("expected no replay of a one-delivery message, got %+v", replayed)
	}
}

func TestOneDeliveryWithNoSubscribersDropsMessageButConsumesIndex(t *testing.T) {
	b := New(100)

	indexed, recipients := b.Publish(mustDecode(t, `{"command":"send","topic":"t","msg":"x","delivery":"one"}`))
	if len(recipients) != 0 {
		t.Fatalf("expected no recipients, got %d", len(recipients))
	}
	if indexed.Index() != 0 {
		t.Errorf("expected index 0 still consumed, got %d", indexed.Index())
	}

	next, _ := b.Publish(mustDecode(t, `{"command":"send","topic":"t","msg":"y","delivery":"one"}`))
	if next.Index() != 1 {
		t.Errorf("expected next index 1, got %d", next.Index())
	}
}

func TestCacheSizeCapEnforced(t *testing.T) {
	b := New(2)
	for i := 0; i < 5; i++ {
		b.Publish(mustDecode(t, fmt.Sprintf(`{"command":"send","topic":"t","msg":"m%d","delivery":"all"}`, i)))
	}

	replayed := b.CatchUp("t", -1)
	if len(replayed) != 2 {
		t.Fatalf("expected cache capped at 2, got %d", len(replayed))
	}
	if replayed[0].Index() != 3 || replayed[1].Index() != 4 {
		t.Errorf("expected the 2 most recent indices 3,4, got %d,%d", replayed[0].Index(), replayed[1].Index())
	}
}

func TestPublishedMessageStaysCachedForLaterReplay(t *testing.T) {
	b := New(100)
	b.Publish(mustDecode(t, `{"command":"send","topic":"t","msg":"m","delivery":"all"}`))

	// A subscribe with cache:false never calls CatchUp at all in the
	// session layer; here we assert the cache itself is untouched by
	// a publish alone, i.e. a later cache:true subscriber still sees it.
	replayed := b.CatchUp("t", -1)
	if len(replayed) != 1 {
		t.Fatalf("expected the message still cached, got %d", len(replayed))
	}
}

func TestConcurrentPublishesAssignDistinctIncreasingIndices(t *testing.T) {
	b := New(1000)
	const n = 200

	var wg sync.WaitGroup
	indices := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			indexed, _ := b.Publish(mustDecode(t, fmt.Sprintf(`{"command":"send","topic":"t","msg":"m%d","delivery":"all"}`, i)))
			indices <- indexed.Index()
		}(i)
	}
	wg.Wait()
	close(indices)

	seen := make(map[int64]bool)
	for idx := range indices {
		if seen[idx] {
			t.Fatalf("index %d assigned more than once", idx)
		}
		seen[idx] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct indices, got %d", n, len(seen))
	}
	for i := int64(0); i < n; i++ {
		if !seen[i] {
			t.Fatalf("expected index %d to have been assigned", i)
		}
	}
}
