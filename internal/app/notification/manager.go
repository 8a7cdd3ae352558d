// Package notification provides the notification manager for fanning out events.
package notification

import (
	"sync"

	"github.com/google/uuid"
)

// Sink receives events from a Manager.
type Sink[E any] interface {
	Notify(E)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc[E any] func(E)

// Notify calls f(e).
func (f SinkFunc[E]) Notify(e E) {
	f(e)
}

// subscription represents a subscriber's subscription.
type subscription[E any] struct {
	id   string
	sink Sink[E]
}

// Manager manages subscriptions and delivers events to them in order.
//
// Events are queued by Enqueue and delivered by Flush. Only one goroutine
// drains the queue at a time; a Flush that finds a drain in progress returns
// immediately and its events are delivered by the active drainer. This lets a
// sink publish further events from inside Notify without deadlocking.
type Manager[E any] struct {
	mu            sync.Mutex
	subscriptions []*subscription[E]
	queue         []E
	draining      bool
	closed        bool
}

// NewManager creates a new notification manager.
func NewManager[E any]() *Manager[E] {
	return &Manager[E]{}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager[E]) Subscribe(sink Sink[E]) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions = append(m.subscriptions, &subscription[E]{
		id:   id,
		sink: sink,
	})
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager[E]) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscriptions {
		if sub.id == subscriptionID {
			m.subscriptions = append(m.subscriptions[:i:i], m.subscriptions[i+1:]...)
			return
		}
	}
}

// Enqueue queues an event for delivery without delivering it.
// Callers holding their own lock use this to fix event order, then Flush after unlocking.
func (m *Manager[E]) Enqueue(e E) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.queue = append(m.queue, e)
}

// Flush delivers queued events to all subscribers in queue order.
func (m *Manager[E]) Flush() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true

	for len(m.queue) > 0 {
		e := m.queue[0]
		m.queue = m.queue[1:]
		// Copy subscriptions to avoid holding lock during delivery
		subs := make([]*subscription[E], len(m.subscriptions))
		copy(subs, m.subscriptions)
		m.mu.Unlock()

		for _, sub := range subs {
			sub.sink.Notify(e)
		}

		m.mu.Lock()
	}

	m.draining = false
	m.mu.Unlock()
}

// Close removes all subscriptions and drops pending events.
// Enqueue is a no-op afterwards.
func (m *Manager[E]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = nil
	m.queue = nil
	m.closed = true
}
