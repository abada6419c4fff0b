package resolver

type State string

const (
	StateIdle                State = "idle"
	StateTokenAbsent         State = "token_absent"
	StateMissingParameter    State = "missing_parameter"
	StateTokenPresent        State = "token_present"
	StateDecoding            State = "decoding"
	StateDecodeSucceeded     State = "decode_succeeded"
	StateDecodeFailed        State = "decode_failed"
	StateNotFound            State = "not_found"
	StateFetchingResource    State = "fetching_resource"
	StateResourceReady       State = "resource_ready"
	StateResourceFetchFailed State = "resource_fetch_failed"
)

var transitions = map[State][]State{
	StateIdle:             {StateTokenAbsent, StateTokenPresent},
	StateTokenAbsent:      {StateMissingParameter},
	StateTokenPresent:     {StateDecoding},
	StateDecoding:         {StateDecodeSucceeded, StateDecodeFailed},
	StateDecodeFailed:     {StateNotFound},
	StateDecodeSucceeded:  {StateFetchingResource},
	StateFetchingResource: {StateResourceReady, StateResourceFetchFailed},
}

func (s State) CanTransition(to State) bool {
	for _, candidate := range transitions[s] {
		if candidate == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	switch s {
	case StateMissingParameter, StateNotFound, StateResourceReady, StateResourceFetchFailed:
		return true
	default:
		return false
	}
}

// Presentation is the user-facing outcome of a page load. Missing and
// undecodable tokens share PresentationNotFound.
type Presentation string

const (
	PresentationLoading     Presentation = "loading"
	PresentationReady       Presentation = "ready"
	PresentationNotFound    Presentation = "not_found"
	PresentationUnavailable Presentation = "unavailable"
)

func presentationFor(state State) Presentation {
	switch state {
	case StateMissingParameter, StateNotFound:
		return PresentationNotFound
	case StateResourceFetchFailed:
		return PresentationUnavailable
	case StateResourceReady:
		return PresentationReady
	default:
		return PresentationLoading
	}
}

// pageState folds side states into the page outcome. Any missing parameter
// wins, then any not found, then work still in flight.
func pageState(states []State) State {
	if len(states) == 0 {
		return StateIdle
	}
	for _, priority := range []State{
		StateMissingParameter,
		StateNotFound,
		StateFetchingResource,
		StateResourceFetchFailed,
	} {
		for _, state := range states {
			if state == priority {
				return priority
			}
		}
	}
	for _, state := range states {
		if state != StateResourceReady {
			return state
		}
	}
	return StateResourceReady
}
