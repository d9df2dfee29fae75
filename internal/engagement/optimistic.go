package engagement

import (
	"fmt"
	"sync"
)

// Status is the lifecycle of an optimistic mutation.
type Status int

const (
	Pending Status = iota
	Confirmed
	RolledBack
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Tracker holds locally displayed state that is updated before the remote
// write completes. Each Apply records the state it replaced so a failed
// write can restore it exactly.
type Tracker[S any] struct {
	mu    sync.Mutex
	state S
}

// NewTracker starts tracking initial.
func NewTracker[S any](initial S) *Tracker[S] {
	return &Tracker[S]{state: initial}
}

// State returns the currently displayed state.
func (t *Tracker[S]) State() S {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset replaces the state with an authoritative value from the server.
func (t *Tracker[S]) Reset(state S) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// Apply replaces the state with next(current) and returns the pending
// mutation.
func (t *Tracker[S]) Apply(next func(S) S) *Mutation[S] {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := &Mutation[S]{tracker: t, snapshot: t.state, status: Pending}
	t.state = next(t.state)
	return m
}

// Mutation is one optimistic change. Confirm and Rollback are terminal; only
// the first of them takes effect.
type Mutation[S any] struct {
	tracker  *Tracker[S]
	snapshot S
	status   Status
}

// Confirm keeps the optimistic state.
func (m *Mutation[S]) Confirm() {
	m.tracker.mu.Lock()
	defer m.tracker.mu.Unlock()
	if m.status == Pending {
		m.status = Confirmed
	}
}

// Rollback restores the state captured when the mutation was applied.
func (m *Mutation[S]) Rollback() {
	m.tracker.mu.Lock()
	defer m.tracker.mu.Unlock()
	if m.status != Pending {
		return
	}
	m.tracker.state = m.snapshot
	m.status = RolledBack
}

// Status reports where the mutation is in its lifecycle.
func (m *Mutation[S]) Status() Status {
	m.tracker.mu.Lock()
	defer m.tracker.mu.Unlock()
	return m.status
}

// Snapshot returns the state the mutation replaced.
func (m *Mutation[S]) Snapshot() S { return m.snapshot }
