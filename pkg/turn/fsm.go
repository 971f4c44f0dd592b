package turn

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	Turn      int
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(event StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

var validTransitions = map[State][]State{
	StateAwaitingResponse: {StateFulfilled, StateNeedsInput, StateErrored},
}

// Tracker follows one turn from AWAITING_RESPONSE to exactly one terminal state.
type Tracker struct {
	mu        sync.RWMutex
	turn      int
	state     State
	startedAt time.Time
	endedAt   time.Time
	listeners []StateListener
}

// NewTracker starts turn number n in AWAITING_RESPONSE.
func NewTracker(n int, listeners ...StateListener) *Tracker {
	return &Tracker{
		turn:      n,
		state:     StateAwaitingResponse,
		startedAt: time.Now(),
		listeners: listeners,
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Turn returns the turn number.
func (t *Tracker) Turn() int { return t.turn }

// Duration is the time spent awaiting the response; zero while still waiting.
func (t *Tracker) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.endedAt.IsZero() {
		return 0
	}
	return t.endedAt.Sub(t.startedAt)
}

// transitionValid checks the transition table.
func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a terminal state. A second transition fails.
func (t *Tracker) Transition(state State, reason string) error {
	t.mu.Lock()
	if !transitionValid(t.state, state) {
		from := t.state
		t.mu.Unlock()
		return &InvalidTransitionError{From: from, To: state}
	}
	event := StateChange{
		Turn:      t.turn,
		FromState: t.state,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	t.state = state
	t.endedAt = event.Timestamp
	listeners := make([]StateListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	// Notify with the lock released; listeners may read State.
	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (t *Tracker) AddListener(listener StateListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid turn transition from " + e.From.String() + " to " + e.To.String()
}
