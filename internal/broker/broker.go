// Package broker implements the topic registry, replay cache, and
// delivery engine described in spec.md §4.2–§4.4.
package broker

import (
	"math/rand"
	"sync"

	"github.com/life-stream-dev/aiomemq/internal/logger"
	"github.com/life-stream-dev/aiomemq/internal/protocol"
)

// Broker is the single coherent piece of process-wide mutable state
// spec.md §9 calls for: the topic registry (forward/reverse maps),
// the per-topic replay caches, and the per-topic next-index counters,
// all serialized by one mutex — spec.md §5 model (b), a single
// broker-wide lock.
type Broker struct {
	mu        sync.Mutex
	forward   map[string]map[Subscriber]struct{}
	reverse   map[Subscriber]map[string]struct{}
	caches    map[string][]protocol.Message
	nextIndex map[string]int64
	cacheCap  int
	idle      *idleTracker

	Stats *Stats
}

// New builds a Broker whose per-topic replay cache is capped at
// cacheCap entries (spec.md §3's C).
func New(cacheCap int) *Broker {
	b := &Broker{
		forward:   make(map[string]map[Subscriber]struct{}),
		reverse:   make(map[Subscriber]map[string]struct{}),
		caches:    make(map[string][]protocol.Message),
		nextIndex: make(map[string]int64),
		cacheCap:  cacheCap,
		Stats:     NewStats(),
	}
	b.idle = newIdleTracker(b.evictTopic)
	return b
}

// evictTopic drops an idle topic's forward-set and cache entries. It
// runs on its own goroutine, dispatched by idleTracker's eviction
// callback (see newIdleTracker) precisely so it can safely take
// Broker.mu without racing the LRU's own internal lock.
//
// nextIndex is deliberately left in place: spec.md §8 invariant 5
// requires NextIndex[T] to never be reused, and a topic can be
// re-subscribed or re-published to after its bookkeeping is
// otherwise forgotten.
func (b *Broker) evictTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.forward[topic]) != 0 || len(b.caches[topic]) != 0 {
		// Became active again after the eviction was already queued.
		return
	}
	delete(b.forward, topic)
	delete(b.caches, topic)
	logger.DebugF("Garbage-collected idle topic %q", topic)
}

// touchLocked marks topic active (cancels pending eviction). Caller
// must hold b.mu.
func (b *Broker) touchLocked(topic string) {
	b.idle.markActive(topic)
}

// maybeIdleLocked marks topic idle if it now has no subscribers and
// no cached messages. Caller must hold b.mu.
func (b *Broker) maybeIdleLocked(topic string) {
	if len(b.forward[topic]) == 0 && len(b.caches[topic]) == 0 {
		b.idle.markIdle(topic)
	}
}

// Subscribe registers sub against topic in both directions
// (spec.md §4.2). It is idempotent.
func (b *Broker) Subscribe(sub Subscriber, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.forward[topic] == nil {
		b.forward[topic] = make(map[Subscriber]struct{})
	}
	b.forward[topic][sub] = struct{}{}

	if b.reverse[sub] == nil {
		b.reverse[sub] = make(map[string]struct{})
	}
	b.reverse[sub][topic] = struct{}{}

	b.touchLocked(topic)
}

// Unsubscribe deregisters sub from topic in both directions
// (spec.md §4.2). It is idempotent.
func (b *Broker) Unsubscribe(sub Subscriber, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(sub, topic)
}

func (b *Broker) unsubscribeLocked(sub Subscriber, topic string) {
	if subs, ok := b.forward[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.forward, topic)
		}
	}
	if topics, ok := b.reverse[sub]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(b.reverse, sub)
		}
	}
	b.maybeIdleLocked(topic)
}

// Purge removes sub from the forward set of every topic it
// subscribes to, then drops its reverse entry (spec.md §4.2). It must
// be called exactly once per session, at disconnect.
func (b *Broker) Purge(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topics := b.reverse[sub]
	for topic := range topics {
		if subs, ok := b.forward[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.forward, topic)
			}
		}
		b.maybeIdleLocked(topic)
	}
	delete(b.reverse, sub)
}

// CatchUp implements spec.md §4.3's catch-up-and-prune: it returns,
// in increasing index order, every cached message for topic with
// index > lastSeen, then rebuilds the topic's cache keeping a message
// iff index <= lastSeen or delivery == "all" (a tautology since only
// "all" messages are ever cached — kept as written per spec.md §9),
// reapplying the size cap.
func (b *Broker) CatchUp(topic string, lastSeen int64) []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	cached := b.caches[topic]
	var toSend []protocol.Message
	for _, m := range cached {
		if m.Index() > lastSeen {
			toSend = append(toSend, m)
		}
	}

	rebuilt := make([]protocol.Message, 0, len(cached))
	for _, m := range cached {
		if m.Index() <= lastSeen || m.Delivery() == protocol.DeliveryAll {
			rebuilt = append(rebuilt, m)
		}
	}
	if len(rebuilt) > b.cacheCap {
		rebuilt = rebuilt[len(rebuilt)-b.cacheCap:]
	}
	b.caches[topic] = rebuilt
	b.maybeIdleLocked(topic)

	return toSend
}

// Publish implements spec.md §4.4's delivery engine: it stamps the
// next index for msg's topic, selects recipients per delivery mode,
// updates the replay cache, and returns the indexed message plus the
// recipients it should be written to. The caller performs the actual
// socket writes outside the broker's lock, and always sends the
// publisher its success reply regardless of the recipient list.
func (b *Broker) Publish(msg protocol.Message) (protocol.Message, []Subscriber) {
	b.mu.Lock()

	topic := msg.Topic()
	idx := b.nextIndex[topic]
	b.nextIndex[topic] = idx + 1
	indexed := msg.WithIndex(idx)

	doCache := indexed.Cache()
	var recipients []Subscriber

	if indexed.Delivery() == protocol.DeliveryAll {
		subs := b.forward[topic]
		recipients = make([]Subscriber, 0, len(subs))
		for s := range subs {
			recipients = append(recipients, s)
		}
	} else {
		subs := b.forward[topic]
		doCache = false
		if len(subs) > 0 {
			list := make([]Subscriber, 0, len(subs))
			for s := range subs {
				list = append(list, s)
			}
			which := rand.Intn(len(list))
			recipients = []Subscriber{list[which]}
		}
	}

	if doCache {
		cache := append(b.caches[topic], indexed)
		if len(cache) > b.cacheCap {
			cache = cache[len(cache)-b.cacheCap:]
		}
		b.caches[topic] = cache
		b.touchLocked(topic)
	} else {
		b.maybeIdleLocked(topic)
	}

	b.mu.Unlock()

	b.Stats.RecordFanout(len(recipients))
	return indexed, recipients
}
