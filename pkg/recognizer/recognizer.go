// Package recognizer defines the contract any streaming speech provider must
// satisfy: push audio in, receive asynchronous recognition events out, with
// provider-side endpointing and explicit early finalization.
package recognizer

import (
	"context"
	"encoding/json"

	"github.com/eduassist/speechgate/pkg/frames"
)

// EventType identifies a provider recognition event.
type EventType string

const (
	// EventPartial carries an interim hypothesis for the current utterance.
	EventPartial EventType = "partial"
	// EventFinal carries the final transcript for the current utterance.
	EventFinal EventType = "final"
	// EventSessionStarted signals the provider is listening.
	EventSessionStarted EventType = "session_started"
	// EventSessionStopped signals the provider stopped listening.
	EventSessionStopped EventType = "session_stopped"
	// EventCanceled signals the provider canceled recognition. The reason
	// decides whether it is benign teardown or a surfaced error.
	EventCanceled EventType = "canceled"
)

// Event is one asynchronous recognition callback, normalized across vendors.
type Event struct {
	Type EventType
	Text string
	// Raw is the provider's result payload, populated only when the
	// session opted in to raw passthrough.
	Raw json.RawMessage
	// Reason and Detail describe cancellations.
	Reason string
	Detail string
}

// Recognizer is one utterance-capable provider session. Implementations own
// their upstream connection and deliver events on a single channel that is
// closed when the recognizer shuts down.
type Recognizer interface {
	// Name returns the vendor name for logging and metrics.
	Name() string
	// Start opens the provider connection and begins listening.
	Start(ctx context.Context) error
	// Close tears down the provider connection and closes Events.
	Close() error
	// PushAudio feeds one PCM frame to the provider.
	PushAudio(frame frames.AudioFrame) error
	// Finalize requests early end-of-utterance for the audio pushed so
	// far. The connection stays usable for subsequent utterances.
	Finalize() error
	// Events returns the provider event stream.
	Events() <-chan Event
}

// Config is the vendor-agnostic per-session recognizer configuration, merged
// once at session creation from server defaults and connection parameters.
type Config struct {
	StreamID   string
	TraceID    string
	Language   string
	EndpointID string
	SampleRate int

	// Endpointing. Initial silence bounds how long the provider waits for
	// speech to begin; end silence bounds the quiet gap that closes an
	// utterance once speech has started.
	InitialSilenceMS int
	EndSilenceMS     int

	// Hints bias recognition toward expected phrases.
	Hints []string

	// IncludeRaw forwards the provider's raw result payload on finals.
	// Off by default: raw payloads can carry more than the transcript.
	IncludeRaw bool
}

// WithDefaults fills unset fields with protocol defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.InitialSilenceMS <= 0 {
		c.InitialSilenceMS = 4000
	}
	if c.EndSilenceMS <= 0 {
		c.EndSilenceMS = 800
	}
	return c
}

// Factory builds a recognizer for one session.
type Factory func(cfg Config) Recognizer
