// Package protocol defines the JSON message protocol spoken over the
// streaming recognition WebSocket.
package protocol

import "encoding/json"

// Outbound message types. Clients must tolerate unknown fields; the server
// never emits anything outside this set.
const (
	TypeReady   = "ready"
	TypePartial = "partial"
	TypeFinal   = "final"
	TypeSession = "session"
	TypeInfo    = "info"
	TypeError   = "error"
)

// Session event values for TypeSession messages.
const (
	SessionStarted = "started"
	SessionStopped = "stopped"
)

// Info event values for TypeInfo messages.
const (
	InfoStopAck = "stop_ack"
)

// CloseUnauthorized is the application close code sent after a failed
// authentication, immediately after the unauthorized error message.
const CloseUnauthorized = 4401

// Message is the tagged union written to clients. Only the fields relevant
// to each type are populated.
type Message struct {
	Type string `json:"type"`

	// TypePartial and TypeFinal.
	Text string `json:"text,omitempty"`
	// TypeFinal, only when raw payload passthrough is enabled.
	Raw json.RawMessage `json:"raw,omitempty"`
	// Utterance sequence number on partial/final/error so clients can
	// correlate messages across utterance boundaries.
	Utterance int `json:"utterance,omitempty"`

	// TypeSession and TypeInfo.
	Event string `json:"event,omitempty"`

	// TypeError.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func Ready() Message {
	return Message{Type: TypeReady}
}

func Partial(utterance int, text string) Message {
	return Message{Type: TypePartial, Utterance: utterance, Text: text}
}

func Final(utterance int, text string, raw json.RawMessage) Message {
	return Message{Type: TypeFinal, Utterance: utterance, Text: text, Raw: raw}
}

func Session(event string) Message {
	return Message{Type: TypeSession, Event: event}
}

func StopAck() Message {
	return Message{Type: TypeInfo, Event: InfoStopAck}
}

func Error(utterance int, reason, detail string) Message {
	return Message{Type: TypeError, Utterance: utterance, Reason: reason, Error: detail}
}
