package statemachine

import (
	"sync"
)

// StateFn represents a state function following Rob Pike's pattern
type StateFn[T any] func(*T) StateFn[T]

// StateMachine is a simple, thread-safe state machine wrapper following Rob Pike's pattern
// State functions are the states themselves, and each returns the next state function
type StateMachine[T any] struct {
	entity  *T           // Reference to the entity
	stateFn StateFn[T]   // Current state function
	mutex   sync.RWMutex // Thread safety
}

// NewStateMachine creates a new state machine for the given entity
func NewStateMachine[T any](entity *T, initialStateFn StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{
		entity:  entity,
		stateFn: initialStateFn,
	}
}

// Run starts from stateFn and keeps executing returned state functions until
// one returns nil. Passive states return nil; self-driving states chain by
// returning the next state's entry function.
func (sm *StateMachine[T]) Run(stateFn StateFn[T]) {
	sm.mutex.Lock()
	sm.stateFn = stateFn
	sm.mutex.Unlock()

	for {
		sm.mutex.RLock()
		current := sm.stateFn
		sm.mutex.RUnlock()

		if current == nil {
			return
		}

		next := current(sm.entity)

		sm.mutex.Lock()
		sm.stateFn = next
		sm.mutex.Unlock()
	}
}
