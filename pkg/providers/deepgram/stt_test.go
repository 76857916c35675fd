package deepgram

import (
	"testing"
	"time"

	"github.com/eduassist/speechgate/pkg/recognizer"
)

func newBufferedRecognizer() *Recognizer {
	return New(recognizer.Config{StreamID: "test-stream"}, Settings{APIKey: "key"})
}

func fillEventBuffer(r *Recognizer) {
	for i := 0; i < cap(r.out); i++ {
		r.emit(recognizer.Event{Type: recognizer.EventPartial, Text: "interim"})
	}
}

func TestEmitShedsPartialsWhenFull(t *testing.T) {
	r := newBufferedRecognizer()
	fillEventBuffer(r)

	done := make(chan struct{})
	go func() {
		r.emit(recognizer.Event{Type: recognizer.EventPartial, Text: "overflow"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("partial emit blocked on a full buffer")
	}
	if len(r.out) != cap(r.out) {
		t.Fatalf("overflow partial was queued")
	}
}

func TestEmitRetriesTerminalEventsUntilDelivered(t *testing.T) {
	r := newBufferedRecognizer()
	fillEventBuffer(r)

	delivered := make(chan struct{})
	go func() {
		r.emit(recognizer.Event{Type: recognizer.EventFinal, Text: "the transcript"})
		close(delivered)
	}()

	// Drain the backlog; the final must follow instead of being dropped.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.out:
			if ev.Type == recognizer.EventFinal {
				if ev.Text != "the transcript" {
					t.Fatalf("unexpected final: %+v", ev)
				}
				select {
				case <-delivered:
				case <-time.After(time.Second):
					t.Fatalf("emit never returned after delivery")
				}
				return
			}
		case <-deadline:
			t.Fatalf("final never delivered")
		}
	}
}

func TestEmitAfterCloseReturns(t *testing.T) {
	r := newBufferedRecognizer()
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	done := make(chan struct{})
	go func() {
		r.emit(recognizer.Event{Type: recognizer.EventCanceled, Reason: "network"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("emit blocked after close")
	}
}
