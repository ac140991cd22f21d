package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMutationPending is returned when a mutation of the same kind is already
// in flight for the same product.
var ErrMutationPending = errors.New("a mutation for this product is already in flight")

// MutationKind names the write operations the console performs.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// MutationState is the lifecycle of a tracked mutation:
// idle -> pending -> succeeded | failed.
type MutationState string

const (
	StateIdle      MutationState = "idle"
	StatePending   MutationState = "pending"
	StateSucceeded MutationState = "succeeded"
	StateFailed    MutationState = "failed"
)

// Mutation is one tracked write attempt. The token ties a completion back to
// the attempt that started it, so a late completion for a superseded attempt
// cannot flip the state of a newer one.
type Mutation struct {
	Token     string
	Kind      MutationKind
	TargetID  int64
	State     MutationState
	Err       error
	StartedAt time.Time
}

type mutationKey struct {
	kind MutationKind
	id   int64
}

// MutationTracker enforces at most one in-flight mutation per (kind, product)
// and records the outcome of the last attempt. Creates have no product id yet
// and share the zero-id slot. Failed attempts stay retryable; nothing retries
// automatically.
type MutationTracker struct {
	mu        sync.Mutex
	mutations map[mutationKey]*Mutation
	now       func() time.Time
}

// NewMutationTracker creates an empty tracker.
func NewMutationTracker() *MutationTracker {
	return &MutationTracker{
		mutations: make(map[mutationKey]*Mutation),
		now:       time.Now,
	}
}

// Begin starts tracking a mutation. It fails with ErrMutationPending if one
// of the same kind is already in flight for the target.
func (t *MutationTracker) Begin(kind MutationKind, targetID int64) (*Mutation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := mutationKey{kind: kind, id: targetID}
	if existing, ok := t.mutations[key]; ok && existing.State == StatePending {
		return nil, ErrMutationPending
	}
	m := &Mutation{
		Token:     uuid.New().String(),
		Kind:      kind,
		TargetID:  targetID,
		State:     StatePending,
		StartedAt: t.now(),
	}
	t.mutations[key] = m
	return m, nil
}

// Succeed marks a mutation as completed.
func (t *MutationTracker) Succeed(m *Mutation) {
	t.complete(m, StateSucceeded, nil)
}

// Fail marks a mutation as failed, keeping the cause for diagnostics.
func (t *MutationTracker) Fail(m *Mutation, err error) {
	t.complete(m, StateFailed, err)
}

func (t *MutationTracker) complete(m *Mutation, state MutationState, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := mutationKey{kind: m.Kind, id: m.TargetID}
	current, ok := t.mutations[key]
	if !ok || current.Token != m.Token {
		// A completion for a superseded attempt; ignore it.
		return
	}
	current.State = state
	current.Err = err
}

// State reports the last known state of a (kind, product) slot.
func (t *MutationTracker) State(kind MutationKind, targetID int64) MutationState {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.mutations[mutationKey{kind: kind, id: targetID}]
	if !ok {
		return StateIdle
	}
	return m.State
}
