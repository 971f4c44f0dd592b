package turn

// State is the dispatch state of one conversational turn.
type State int

const (
	StateAwaitingResponse State = iota
	StateFulfilled
	StateNeedsInput
	StateErrored
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateFulfilled:
		return "FULFILLED"
	case StateNeedsInput:
		return "NEEDS_INPUT"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the turn is over.
func (s State) Terminal() bool {
	return s == StateFulfilled || s == StateNeedsInput || s == StateErrored
}
