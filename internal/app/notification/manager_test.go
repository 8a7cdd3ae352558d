package notification

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []int
}

func (r *recorder) Notify(e int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) got() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.events))
	copy(out, r.events)
	return out
}

func publish(m *Manager[int], events ...int) {
	for _, e := range events {
		m.Enqueue(e)
	}
	m.Flush()
}

func TestManager_SubscribeAndPublish(t *testing.T) {
	m := NewManager[int]()
	a := &recorder{}
	b := &recorder{}

	idA := m.Subscribe(a)
	idB := m.Subscribe(b)
	require.NotEqual(t, idA, idB)

	publish(m, 1)
	publish(m, 2)

	assert.Equal(t, []int{1, 2}, a.got())
	assert.Equal(t, []int{1, 2}, b.got())
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager[int]()
	a := &recorder{}
	b := &recorder{}

	idA := m.Subscribe(a)
	m.Subscribe(b)

	publish(m, 1)
	m.Unsubscribe(idA)
	publish(m, 2)

	// Unknown IDs are ignored
	m.Unsubscribe("unknown")
	publish(m, 3)

	assert.Equal(t, []int{1}, a.got())
	assert.Equal(t, []int{1, 2, 3}, b.got())
}

func TestManager_EnqueueDefersDelivery(t *testing.T) {
	m := NewManager[int]()
	r := &recorder{}
	m.Subscribe(r)

	m.Enqueue(1)
	m.Enqueue(2)
	assert.Empty(t, r.got())

	m.Flush()
	assert.Equal(t, []int{1, 2}, r.got())
}

func TestManager_ReentrantPublish(t *testing.T) {
	m := NewManager[int]()
	r := &recorder{}

	// The first sink publishes a follow-up event while handling event 1.
	m.Subscribe(SinkFunc[int](func(e int) {
		if e == 1 {
			publish(m, 10)
		}
	}))
	m.Subscribe(r)

	publish(m, 1)

	// The follow-up is delivered after every sink has seen event 1.
	assert.Equal(t, []int{1, 10}, r.got())
}

func TestManager_Close(t *testing.T) {
	m := NewManager[int]()
	r := &recorder{}
	m.Subscribe(r)

	m.Enqueue(1)
	m.Close()
	m.Flush()
	publish(m, 2)

	assert.Empty(t, r.got())
}
