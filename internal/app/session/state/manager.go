package state

import (
	"sync"
	"time"
)

// Snapshot is a copy of the lifecycle state.
type Snapshot struct {
	Phase       Phase
	Accepting   AcceptingState
	StartedAt   *time.Time
	AutoReloads int
}

// Manager manages session lifecycle state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	phase       Phase
	accepting   AcceptingState
	startedAt   *time.Time
	autoReloads int
}

// New creates a new state manager in PhaseWaiting.
func New() *Manager {
	return &Manager{
		phase:     PhaseWaiting,
		accepting: NotAccepting,
	}
}

// GetPhase returns the current session phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Activate moves the session into PhaseActive and starts accepting commands.
func (m *Manager) Activate(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseActive
	m.accepting = Accepting
	m.startedAt = &now
}

// Terminate moves the session into PhaseTerminated.
// Returns false if it was already terminated.
func (m *Manager) Terminate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseTerminated {
		return false
	}
	m.phase = PhaseTerminated
	m.accepting = NotAccepting
	return true
}

// CanAcceptCommands returns true if control commands should reach the controller.
func (m *Manager) CanAcceptCommands() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase == PhaseActive && m.accepting == Accepting
}

// IncrementAutoReloads records an automatic reload after the media ended.
func (m *Manager) IncrementAutoReloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReloads++
	return m.autoReloads
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Phase:       m.phase,
		Accepting:   m.accepting,
		AutoReloads: m.autoReloads,
	}
	if m.startedAt != nil {
		t := *m.startedAt
		s.StartedAt = &t
	}
	return s
}
