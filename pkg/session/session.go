// Package session owns the lifecycle of one recognition session bound to one
// client connection: it feeds validated audio to the provider recognizer,
// translates provider events into protocol messages, and enforces the
// one-terminal-per-utterance ordering contract.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eduassist/speechgate/pkg/audio"
	"github.com/eduassist/speechgate/pkg/errorsx"
	"github.com/eduassist/speechgate/pkg/frames"
	"github.com/eduassist/speechgate/pkg/metrics"
	"github.com/eduassist/speechgate/pkg/protocol"
	"github.com/eduassist/speechgate/pkg/recognizer"
	"github.com/eduassist/speechgate/pkg/redact"
)

// Sink receives ordered outbound messages for one connection. Implementations
// must serialize writes; the session may call Send from multiple goroutines.
type Sink interface {
	Send(msg protocol.Message) error
}

// Options carries session policy knobs beyond the recognizer config.
type Options struct {
	Logger   *slog.Logger
	Observer metrics.Observer

	Normalize        bool
	NormalizeTarget  int
	NormalizeMaxGain float64
}

// Session is one logical recognition session. It survives across utterances:
// a final result returns the session to idle, ready for more audio.
type Session struct {
	cfg  recognizer.Config
	rec  recognizer.Recognizer
	sink Sink
	opts Options

	logger *slog.Logger
	fsm    *stateMachine

	mu           sync.Mutex
	utterance    int
	terminalSeen bool
	speechSeen   bool
	readySent    bool
	closed       bool
	bytesRx      int64
	framesRx     int64
	frameErrors  int64
	silenceTimer *time.Timer

	ready    chan struct{}
	pumpDone chan struct{}
}

func New(cfg recognizer.Config, rec recognizer.Recognizer, sink Sink, opts Options) *Session {
	cfg = cfg.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		rec:      rec,
		sink:     sink,
		opts:     opts,
		logger:   logger.With(slog.String("stream_id", cfg.StreamID)),
		fsm:      newStateMachine(),
		ready:    make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Start opens the recognizer and begins translating its events. The ready
// message is emitted only once the provider confirms it is listening.
func (s *Session) Start(ctx context.Context) error {
	if err := s.rec.Start(ctx); err != nil {
		return err
	}
	s.armSilenceWatchdog()
	go s.pump()
	metrics.Emit(s.opts.Observer, metrics.EventSessionStart, s.cfg.StreamID, 1, map[string]any{
		"provider": s.rec.Name(),
		"language": s.cfg.Language,
	})
	return nil
}

// Ready is closed once the ready message has been sent.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed when the provider event stream ends; after that no further
// recognition messages can arrive and the supervisor should close the socket.
func (s *Session) Done() <-chan struct{} { return s.pumpDone }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.fsm.State() }

// Utterance returns the current utterance sequence number.
func (s *Session) Utterance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utterance
}

// Stats reports bytes and frames received since the last final result, plus
// dropped malformed frames over the session lifetime.
func (s *Session) Stats() (bytesRx, framesRx, frameErrors int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesRx, s.framesRx, s.frameErrors
}

// HandleAudio processes one inbound binary frame. Malformed frames are
// dropped and counted, never fatal; the first valid frame of an idle session
// opens a new utterance.
func (s *Session) HandleAudio(payload []byte) error {
	if err := audio.ValidatePCM16(payload); err != nil {
		s.mu.Lock()
		s.frameErrors++
		s.mu.Unlock()
		s.logger.Warn("dropping malformed audio frame",
			slog.Int("size_bytes", len(payload)),
			slog.String("reason_code", string(errorsx.ReasonBadFrame)))
		metrics.Emit(s.opts.Observer, metrics.EventFrameRejected, s.cfg.StreamID, 1, nil)
		return nil
	}
	if s.fsm.State() == StateClosed {
		return nil
	}

	if s.opts.Normalize {
		payload = audio.Normalize(payload, s.opts.NormalizeTarget, s.opts.NormalizeMaxGain)
	}

	s.mu.Lock()
	if s.fsm.State() == StateIdle {
		if err := s.fsm.Transition(StateListening, "audio frame"); err == nil {
			s.utterance++
			s.terminalSeen = false
		}
	}
	s.bytesRx += int64(len(payload))
	s.framesRx++
	s.mu.Unlock()

	metrics.Emit(s.opts.Observer, metrics.EventFrameReceived, s.cfg.StreamID, float64(len(payload)), nil)

	frame := frames.NewAudioFrame(s.cfg.StreamID, time.Now().UnixNano(), payload, s.cfg.SampleRate, 1, map[string]string{
		frames.MetaTraceID:  s.cfg.TraceID,
		frames.MetaLanguage: s.cfg.Language,
		frames.MetaSource:   "client",
	})
	return s.rec.PushAudio(frame)
}

// HandleStop processes an explicit stop request. The acknowledgment goes out
// immediately and never waits for finalization; with no utterance in
// progress the stop is acknowledged and otherwise ignored.
func (s *Session) HandleStop() {
	s.send(protocol.StopAck())

	s.mu.Lock()
	listening := s.fsm.State() == StateListening
	if listening {
		_ = s.fsm.Transition(StateFinalizing, "explicit stop")
	}
	s.mu.Unlock()

	if listening {
		if err := s.rec.Finalize(); err != nil {
			s.logger.Warn("recognizer finalize failed",
				slog.String("error", err.Error()),
				slog.String("reason_code", string(errorsx.ReasonSTTSend)))
		}
		s.armFinalizeGrace()
	}
}

// armFinalizeGrace bounds how long a stop may hold the session in the
// finalizing state. A stop with no buffered speech produces no terminal at
// all, so after the end-silence window the session quietly returns to idle.
func (s *Session) armFinalizeGrace() {
	s.mu.Lock()
	utt := s.utterance
	s.mu.Unlock()

	grace := time.Duration(s.cfg.EndSilenceMS) * time.Millisecond
	time.AfterFunc(grace, func() {
		s.mu.Lock()
		expired := !s.closed && !s.terminalSeen && s.utterance == utt &&
			s.fsm.State() == StateFinalizing
		s.mu.Unlock()
		if !expired {
			return
		}
		if err := s.fsm.Transition(StateIdle, "finalize grace expired"); err == nil {
			s.logger.Debug("no terminal after stop, returning to idle",
				slog.Int("utterance", utt))
		}
	})
}

// Close releases the recognizer. Safe to call more than once.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.mu.Unlock()

	_ = s.fsm.Transition(StateClosed, reason)
	if err := s.rec.Close(); err != nil {
		s.logger.Warn("recognizer close failed", slog.String("error", err.Error()))
	}
	metrics.Emit(s.opts.Observer, metrics.EventSessionEnd, s.cfg.StreamID, 1, map[string]any{
		"reason": reason,
	})
	s.logger.Info("session closed", slog.String("reason", reason))
}

func (s *Session) pump() {
	defer close(s.pumpDone)
	for ev := range s.rec.Events() {
		s.handleEvent(ev)
	}
}

func (s *Session) handleEvent(ev recognizer.Event) {
	switch ev.Type {
	case recognizer.EventSessionStarted:
		s.mu.Lock()
		first := !s.readySent
		s.readySent = true
		s.mu.Unlock()
		if first {
			s.send(protocol.Ready())
			close(s.ready)
		}
		s.send(protocol.Session(protocol.SessionStarted))

	case recognizer.EventSessionStopped:
		s.send(protocol.Session(protocol.SessionStopped))

	case recognizer.EventPartial:
		s.mu.Lock()
		stale := s.terminalSeen || s.fsm.State() == StateIdle || s.fsm.State() == StateClosed
		utt := s.utterance
		s.speechSeen = true
		s.mu.Unlock()
		if stale {
			s.logger.Debug("discarding stale partial", slog.Int("utterance", utt))
			return
		}
		s.send(protocol.Partial(utt, ev.Text))
		s.logger.Debug("partial hypothesis",
			slog.Int("utterance", utt),
			slog.String("text", redact.Transcript(ev.Text)))

	case recognizer.EventFinal:
		s.mu.Lock()
		stale := s.terminalSeen || s.fsm.State() == StateIdle || s.fsm.State() == StateClosed
		if stale {
			s.mu.Unlock()
			s.logger.Debug("discarding stale final")
			return
		}
		s.terminalSeen = true
		utt := s.utterance
		bytesRx := s.bytesRx
		s.bytesRx, s.framesRx = 0, 0
		s.speechSeen = false
		s.rearmSilenceWatchdogLocked()
		s.mu.Unlock()

		s.send(protocol.Final(utt, ev.Text, ev.Raw))
		_ = s.fsm.Transition(StateIdle, "final result")
		metrics.Emit(s.opts.Observer, metrics.EventUtteranceFinal, s.cfg.StreamID, float64(utt), map[string]any{
			"bytes": bytesRx,
		})
		s.logger.Info("utterance finalized",
			slog.Int("utterance", utt),
			slog.String("text", redact.Transcript(ev.Text)))

	case recognizer.EventCanceled:
		s.handleCancel(ev)
	}
}

// handleCancel classifies a provider cancellation. End-of-stream teardown is
// benign and silent; anything else surfaces exactly one error message for
// the current utterance, after which the session returns to idle so one bad
// utterance does not kill the connection.
func (s *Session) handleCancel(ev recognizer.Event) {
	if errorsx.BenignCancel(ev.Reason) {
		s.logger.Debug("benign cancellation",
			slog.String("reason", ev.Reason))
		_ = s.fsm.Transition(StateIdle, "benign end of stream")
		return
	}

	s.mu.Lock()
	utt := s.utterance
	// A terminal already went out for this utterance; whatever the provider
	// reports afterward is a late callback for superseded work.
	if s.terminalSeen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale cancellation",
			slog.Int("utterance", utt),
			slog.String("reason", ev.Reason))
		return
	}
	s.terminalSeen = true
	s.bytesRx, s.framesRx = 0, 0
	s.speechSeen = false
	s.rearmSilenceWatchdogLocked()
	s.mu.Unlock()

	reason := ev.Reason
	if reason == "" {
		reason = string(errorsx.ReasonSTTCanceled)
	}
	detail := ev.Detail
	if detail == "" {
		detail = "recognition canceled"
	}
	s.send(protocol.Error(utt, reason, detail))
	_ = s.fsm.Transition(StateIdle, "fatal cancellation")
	metrics.Emit(s.opts.Observer, metrics.EventSessionError, s.cfg.StreamID, 1, map[string]any{
		"reason": reason,
	})
	s.logger.Error("recognition canceled",
		slog.Int("utterance", utt),
		slog.String("reason", reason),
		slog.String("detail", detail))
}

func (s *Session) send(msg protocol.Message) {
	if err := s.sink.Send(msg); err != nil {
		s.logger.Warn("outbound send failed",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
	}
}

// armSilenceWatchdog starts the initial-silence timer: if no speech has been
// observed within the configured window the event is logged and counted, the
// session stays open, and the timer re-arms. Endpointing of started speech
// belongs to the provider; this guard only covers silence before speech.
func (s *Session) armSilenceWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rearmSilenceWatchdogLocked()
}

func (s *Session) rearmSilenceWatchdogLocked() {
	if s.closed {
		return
	}
	d := time.Duration(s.cfg.InitialSilenceMS) * time.Millisecond
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.silenceTimer = time.AfterFunc(d, s.onInitialSilence)
}

func (s *Session) onInitialSilence() {
	s.mu.Lock()
	if s.closed || s.speechSeen {
		s.mu.Unlock()
		return
	}
	s.rearmSilenceWatchdogLocked()
	s.mu.Unlock()

	s.logger.Info("initial silence timeout",
		slog.Int("timeout_ms", s.cfg.InitialSilenceMS),
		slog.String("state", s.fsm.State().String()))
	metrics.Emit(s.opts.Observer, metrics.EventSessionError, s.cfg.StreamID, 0, map[string]any{
		"reason": "initial_silence",
	})
}
