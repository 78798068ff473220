package broker

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// idleTopicCapacity and idleTopicTTL bound how long a topic with no
// subscribers and an empty replay cache is remembered before its
// forward-map entry is dropped (the per-topic NextIndex counter is
// kept regardless, see evictTopic). spec.md §3 explicitly allows this:
// "a topic with no subscribers and no cached messages may be
// retained; implementations may garbage-collect empty topics but need
// not."
const (
	idleTopicCapacity = 4096
	idleTopicTTL      = 30 * time.Minute
)

// idleTracker remembers which topics are currently empty (no
// subscribers, no cached messages) and evicts their bookkeeping once
// they've stayed empty past idleTopicTTL or the tracker overflows.
type idleTracker struct {
	lru *expirable.LRU[string, struct{}]
}

// newIdleTracker wires onEvict to the LRU's eviction callback. The
// golang-lru expirable.LRU invokes that callback synchronously — from
// inside Add/Remove on capacity overflow, and from its own background
// expiration goroutine — while already holding the LRU's internal
// lock. onEvict (broker.evictTopic) needs Broker.mu, which callers
// such as Subscribe/Unsubscribe/Publish already hold when they call
// markIdle/markActive (which take the LRU's lock in turn). Running
// onEvict inline would self-deadlock the first time the LRU evicts
// from inside a foreground call, and invert lock order (Broker.mu before
// the LRU lock in the foreground vs. the LRU lock before Broker.mu in
// the background expirer) the rest of the time. Dispatching it onto
// its own goroutine breaks both: the LRU's lock is never held while
// onEvict runs.
func newIdleTracker(onEvict func(topic string)) *idleTracker {
	lru := expirable.NewLRU[string, struct{}](idleTopicCapacity, func(topic string, _ struct{}) {
		go onEvict(topic)
	}, idleTopicTTL)
	return &idleTracker{lru: lru}
}

// markIdle notes that topic currently has no subscribers and no
// cached messages, making it eligible for later eviction.
func (t *idleTracker) markIdle(topic string) {
	t.lru.Add(topic, struct{}{})
}

// markActive cancels eviction: topic has a subscriber or a cache
// entry again.
func (t *idleTracker) markActive(topic string) {
	t.lru.Remove(topic)
}
