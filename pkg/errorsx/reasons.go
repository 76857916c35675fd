package errorsx

import "strings"

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonUnauthorized ReasonCode = "unauthorized"

	ReasonSTTConnect  ReasonCode = "stt_connect"
	ReasonSTTSend     ReasonCode = "stt_send"
	ReasonSTTCanceled ReasonCode = "stt_canceled"

	ReasonEndOfStream ReasonCode = "end_of_stream"

	ReasonBadFrame ReasonCode = "bad_frame"
)

// BenignCancel reports whether a provider cancellation reason marks normal
// stream termination rather than a failure. Benign cancellations are never
// surfaced to clients as errors.
func BenignCancel(reason string) bool {
	r := strings.ToLower(strings.TrimSpace(reason))
	switch r {
	case "", string(ReasonEndOfStream), "endofstream", "eof", "stream_closed", "session_stopped":
		return true
	}
	return false
}
