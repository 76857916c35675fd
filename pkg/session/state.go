package session

// State is the lifecycle phase of one recognition session.
type State int

const (
	// StateIdle: recognizer ready, no utterance in progress.
	StateIdle State = iota
	// StateListening: audio is flowing, provider accumulating speech.
	StateListening
	// StateFinalizing: end-of-utterance requested or detected, awaiting the
	// provider's final result.
	StateFinalizing
	// StateClosed: session terminated, recognizer released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateFinalizing:
		return "FINALIZING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
