package vad

// State is the lifecycle of one utterance capture.
type State int

const (
	StateNotStartpointed State = iota
	StateStartpointed
	StateEndpointed
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateNotStartpointed:
		return "NOT_STARTPOINTED"
	case StateStartpointed:
		return "STARTPOINTED"
	case StateEndpointed:
		return "ENDPOINTED"
	default:
		return "UNKNOWN"
	}
}

// Classification is the verdict for one frame. Values mirror the native
// classifier return codes: 1 speech, 0 non-speech, -1 error.
type Classification int

const (
	ClassError     Classification = -1
	ClassNonSpeech Classification = 0
	ClassSpeech    Classification = 1
)

func (c Classification) String() string {
	switch c {
	case ClassSpeech:
		return "speech"
	case ClassNonSpeech:
		return "non_speech"
	default:
		return "error"
	}
}
