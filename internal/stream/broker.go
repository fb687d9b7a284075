// Package stream fans alerts out to live subscribers. Each subscriber owns a
// bounded queue; when it is full the oldest queued alert is evicted so a slow
// consumer never blocks publishers.
package stream

import (
	"sync"

	"github.com/telhawk-systems/flowhawk/internal/metrics"
	"github.com/telhawk-systems/flowhawk/internal/models"
)

// DefaultQueueSize bounds each subscriber queue.
const DefaultQueueSize = 100

// Subscription is one consumer of the broker.
type Subscription struct {
	id      uint64
	ch      chan models.Alert
	dropped int
}

// C delivers alerts in publish order. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan models.Alert {
	return s.ch
}

// Broker is safe for concurrent use.
type Broker struct {
	mu        sync.Mutex
	subs      map[uint64]*Subscription
	nextID    uint64
	queueSize int
	published uint64
}

// NewBroker returns a Broker; a non-positive queueSize selects
// DefaultQueueSize.
func NewBroker(queueSize int) *Broker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broker{
		subs:      make(map[uint64]*Subscription),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan models.Alert, b.queueSize)}
	b.subs[sub.id] = sub
	metrics.StreamSubscribers.Set(float64(len(b.subs)))
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	metrics.StreamSubscribers.Set(float64(len(b.subs)))
}

// Publish enqueues alert for every current subscriber without blocking.
// Delivery happens under the broker lock, so two publishes reach every
// subscriber in the same order and a removed subscriber never receives.
func (b *Broker) Publish(alert models.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published++
	for _, sub := range b.subs {
		b.offer(sub, alert)
	}
}

func (b *Broker) offer(sub *Subscription, alert models.Alert) {
	select {
	case sub.ch <- alert:
		return
	default:
	}
	// Full: evict the oldest entry. The consumer may have drained meanwhile,
	// in which case nothing is dropped.
	select {
	case <-sub.ch:
		sub.dropped++
		metrics.StreamDropped.Inc()
	default:
	}
	select {
	case sub.ch <- alert:
	default:
		sub.dropped++
		metrics.StreamDropped.Inc()
	}
}

// Stats is a point-in-time view of the broker.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     int    `json:"dropped"`
}

func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Stats{Subscribers: len(b.subs), Published: b.published}
	for _, sub := range b.subs {
		st.Dropped += sub.dropped
	}
	return st
}

// Dropped returns how many alerts sub lost to eviction.
func (b *Broker) Dropped(sub *Subscription) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sub.dropped
}
