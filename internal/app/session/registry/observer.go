// Package registry tracks the named playback observers of a session.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/rediseg/internal/app/playback"
)

var (
	ErrDuplicateObserver = errors.New("observer already registered")
	ErrUnknownObserver   = errors.New("unknown observer")
)

// Subscriber is the controller side of an observer subscription.
type Subscriber interface {
	Subscribe(o playback.Observer) string
	Unsubscribe(id string)
}

// ObserverRegistry maps observer names to their subscription IDs.
type ObserverRegistry struct {
	mu         sync.RWMutex
	subscriber Subscriber
	ids        map[string]string
}

// NewObserverRegistry creates a registry subscribing through s.
func NewObserverRegistry(s Subscriber) *ObserverRegistry {
	return &ObserverRegistry{
		subscriber: s,
		ids:        make(map[string]string),
	}
}

// Add subscribes an observer under a unique name.
func (r *ObserverRegistry) Add(name string, o playback.Observer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[name]; ok {
		return errors.Wrapf(ErrDuplicateObserver, "name=%s", name)
	}
	r.ids[name] = r.subscriber.Subscribe(o)
	return nil
}

// Remove unsubscribes the named observer.
func (r *ObserverRegistry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.ids[name]
	if !ok {
		return errors.Wrapf(ErrUnknownObserver, "name=%s", name)
	}
	r.subscriber.Unsubscribe(id)
	delete(r.ids, name)
	return nil
}

// Names returns the registered observer names in sorted order.
func (r *ObserverRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ids))
	for name := range r.ids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered observers.
func (r *ObserverRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}
