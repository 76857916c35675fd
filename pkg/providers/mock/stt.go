// Package mock provides a scripted recognizer for tests. It behaves like a
// real provider with endpointing: pushed audio counts toward speech, silence
// does not, and finals fire either on the scripted byte threshold or on an
// explicit Finalize.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/eduassist/speechgate/pkg/frames"
	"github.com/eduassist/speechgate/pkg/recognizer"
)

type Config struct {
	StreamID   string
	Transcript string
	Interim    string

	// EmitInterim emits one partial per utterance before the final.
	EmitInterim bool
	// AutoFinalBytes emits a final once this many speech bytes arrive,
	// simulating provider endpointing. Zero disables auto finals.
	AutoFinalBytes int
	// DetectSilence treats all-zero frames as silence: they never count
	// toward speech and never produce hypotheses.
	DetectSilence bool
	// IncludeRaw attaches a synthetic raw payload to finals.
	IncludeRaw bool
	// FailStart makes Start return an error, for connect-failure tests.
	FailStart bool
}

type Recognizer struct {
	cfg Config
	out chan recognizer.Event

	mu          sync.Mutex
	started     bool
	closed      bool
	speechBytes int
	interimSent bool
}

func New(cfg Config) *Recognizer {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &Recognizer{cfg: cfg, out: make(chan recognizer.Event, 32)}
}

func (r *Recognizer) Name() string { return "mock_stt" }

func (r *Recognizer) Start(ctx context.Context) error {
	_ = ctx
	if r.cfg.FailStart {
		return errors.New("mock start failure")
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	r.emit(recognizer.Event{Type: recognizer.EventSessionStarted})
	return nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.started = false
	close(r.out)
	return nil
}

func (r *Recognizer) PushAudio(frame frames.AudioFrame) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return errors.New("not started")
	}
	payload := frame.RawPayload()
	if r.cfg.DetectSilence && isSilent(payload) {
		r.mu.Unlock()
		return nil
	}
	r.speechBytes += len(payload)
	sendInterim := r.cfg.EmitInterim && !r.interimSent && r.speechBytes > 0
	if sendInterim {
		r.interimSent = true
	}
	final := r.cfg.AutoFinalBytes > 0 && r.speechBytes >= r.cfg.AutoFinalBytes
	if final {
		r.speechBytes = 0
		r.interimSent = false
	}
	r.mu.Unlock()

	if sendInterim {
		r.emit(recognizer.Event{Type: recognizer.EventPartial, Text: r.interimText()})
	}
	if final {
		r.emit(r.finalEvent())
	}
	return nil
}

// Finalize ends the current utterance early. With no speech accumulated it
// is a no-op, mirroring how providers treat a stop with nothing to finalize.
func (r *Recognizer) Finalize() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return errors.New("not started")
	}
	hasSpeech := r.speechBytes > 0
	r.speechBytes = 0
	r.interimSent = false
	r.mu.Unlock()

	if hasSpeech {
		r.emit(r.finalEvent())
	}
	return nil
}

func (r *Recognizer) Events() <-chan recognizer.Event { return r.out }

// InjectCancel delivers a cancellation event, benign or fatal depending on
// the reason. Test hook.
func (r *Recognizer) InjectCancel(reason, detail string) {
	r.emit(recognizer.Event{Type: recognizer.EventCanceled, Reason: reason, Detail: detail})
}

// InjectStopped delivers a provider session_stopped event. Test hook.
func (r *Recognizer) InjectStopped() {
	r.emit(recognizer.Event{Type: recognizer.EventSessionStopped})
}

func (r *Recognizer) emit(ev recognizer.Event) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	select {
	case r.out <- ev:
	default:
	}
}

func (r *Recognizer) interimText() string {
	if r.cfg.Interim != "" {
		return r.cfg.Interim
	}
	return r.cfg.Transcript
}

func (r *Recognizer) finalEvent() recognizer.Event {
	ev := recognizer.Event{Type: recognizer.EventFinal, Text: r.cfg.Transcript}
	if r.cfg.IncludeRaw {
		raw, _ := json.Marshal(map[string]string{"transcript": r.cfg.Transcript})
		ev.Raw = raw
	}
	return ev
}

func isSilent(payload []byte) bool {
	for _, b := range payload {
		if b != 0 {
			return false
		}
	}
	return true
}

var _ recognizer.Recognizer = (*Recognizer)(nil)
