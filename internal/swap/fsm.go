package swap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kjannette/trahn-swap/internal/models"
)

var ErrEventRejected = errors.New("event rejected")

// StateType is an attempt state; values match the persisted models.State*.
type StateType string

type EventType string

const (
	Idle      StateType = models.StateIdle
	Quoting   StateType = models.StateQuoting
	Approving StateType = models.StateApproving
	Executing StateType = models.StateExecuting
	Confirmed StateType = models.StateConfirmed
	Failed    StateType = models.StateFailed
)

const (
	OnStart         EventType = "Start"
	OnNeedsApproval EventType = "NeedsApproval"
	OnReady         EventType = "Ready"
	OnApproved      EventType = "Approved"
	OnMined         EventType = "Mined"
	OnError         EventType = "Error"
)

// Transitions maps events to next states.
type Transitions map[EventType]StateType

var attemptStates = map[StateType]Transitions{
	Idle: {
		OnStart: Quoting,
		OnError: Failed,
	},
	Quoting: {
		OnNeedsApproval: Approving,
		OnReady:         Executing,
		OnError:         Failed,
	},
	Approving: {
		OnApproved: Executing,
		OnError:    Failed,
	},
	Executing: {
		OnMined: Confirmed,
		OnError: Failed,
	},
	Confirmed: {},
	Failed:    {},
}

// Notification is sent to observers on every transition.
type Notification struct {
	PreviousState StateType
	NextState     StateType
	Event         EventType
}

type Observer interface {
	Notify(Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }

// attemptMachine tracks one swap attempt. It is never reused.
type attemptMachine struct {
	mu        sync.Mutex
	current   StateType
	observers []Observer
}

func newAttemptMachine(observers ...Observer) *attemptMachine {
	return &attemptMachine{current: Idle, observers: observers}
}

func (m *attemptMachine) State() StateType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Send applies event, notifying observers. Events not valid in the current
// state are rejected.
func (m *attemptMachine) Send(event EventType) error {
	m.mu.Lock()
	next, ok := attemptStates[m.current][event]
	if !ok {
		cur := m.current
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in state %s", ErrEventRejected, event, cur)
	}
	n := Notification{PreviousState: m.current, NextState: next, Event: event}
	m.current = next
	observers := m.observers
	m.mu.Unlock()

	for _, o := range observers {
		o.Notify(n)
	}
	return nil
}

func (s StateType) Terminal() bool { return s == Confirmed || s == Failed }
