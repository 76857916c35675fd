// Package deepgram implements the streaming recognizer contract on top of
// the Deepgram live transcription WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/eduassist/speechgate/pkg/errorsx"
	"github.com/eduassist/speechgate/pkg/frames"
	"github.com/eduassist/speechgate/pkg/logging"
	"github.com/eduassist/speechgate/pkg/recognizer"
	"github.com/eduassist/speechgate/pkg/resilience"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// Settings carries vendor-specific knobs from the gateway config.
type Settings struct {
	APIKey string
	Model  string
}

// Recognizer streams PCM16 audio to Deepgram and normalizes its callback
// events into recognizer.Event values.
type Recognizer struct {
	cfg      recognizer.Config
	settings Settings

	dgClient   *client.WSCallback
	out        chan recognizer.Event
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool

	retryPolicy resilience.RetryPolicy
}

func New(cfg recognizer.Config, settings Settings) *Recognizer {
	cfg = cfg.WithDefaults()
	if settings.Model == "" {
		settings.Model = "nova-2"
	}

	baseLogger := slog.Default()
	logger := logging.NewComponentLogger(baseLogger, "deepgram_stt")

	return &Recognizer{
		cfg:         cfg,
		settings:    settings,
		out:         make(chan recognizer.Event, 256),
		logger:      logger,
		retryPolicy: resilience.NewRetryPolicy(3, 200*time.Millisecond),
	}
}

func (r *Recognizer) Name() string { return "deepgram_streaming" }

func (r *Recognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.pipeReader, r.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.settings.Model,
		Language:       r.cfg.Language,
		Encoding:       "linear16",
		SampleRate:     r.cfg.SampleRate,
		Channels:       1,
		InterimResults: true,
		SmartFormat:    true,
		Endpointing:    strconv.Itoa(r.cfg.EndSilenceMS),
		UtteranceEndMs: strconv.Itoa(r.cfg.EndSilenceMS),
	}
	if len(r.cfg.Hints) > 0 {
		transcriptOptions.Keywords = r.cfg.Hints
	}
	// Deepgram selects custom-trained models by model identifier rather
	// than a separate deployment id.
	if r.cfg.EndpointID != "" {
		transcriptOptions.Model = r.cfg.EndpointID
	}

	r.logger.Info("initializing deepgram connection",
		slog.String("stream_id", r.cfg.StreamID),
		slog.String("model", transcriptOptions.Model),
		slog.String("language", r.cfg.Language),
		slog.Int("end_silence_ms", r.cfg.EndSilenceMS),
		slog.Int("sample_rate", r.cfg.SampleRate))

	cb := &callback{parent: r}

	dgClient, err := client.NewWSUsingCallback(r.ctx, r.settings.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		r.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("stream_id", r.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	r.dgClient = dgClient

	err = r.retryPolicy.Do(r.ctx, func() error {
		if connected := r.dgClient.Connect(); !connected {
			return fmt.Errorf("deepgram connection failed")
		}
		return nil
	})
	if err != nil {
		r.logger.Error("deepgram_connect_failed",
			slog.String("stream_id", r.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}

	r.logger.Info("deepgram_connected",
		slog.String("stream_id", r.cfg.StreamID),
		slog.String("model", transcriptOptions.Model))

	go func() {
		if err := r.dgClient.Stream(r.pipeReader); err != nil && r.ctx.Err() == nil {
			r.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("stream_id", r.cfg.StreamID))
		}
	}()

	return nil
}

func (r *Recognizer) Close() error {
	r.logger.Info("closing deepgram connection",
		slog.String("stream_id", r.cfg.StreamID))

	if r.cancel != nil {
		r.cancel()
	}
	if r.pipeWriter != nil {
		_ = r.pipeWriter.Close()
	}
	if r.dgClient != nil {
		r.dgClient.Stop()
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.out)
	}
	r.mu.Unlock()
	return nil
}

func (r *Recognizer) PushAudio(frame frames.AudioFrame) error {
	if r.pipeWriter == nil {
		return fmt.Errorf("not started")
	}
	_, err := r.pipeWriter.Write(frame.RawPayload())
	if err != nil {
		r.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("stream_id", r.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

// Finalize flushes Deepgram's transcription buffer, forcing a final for the
// audio sent so far. The socket stays open for the next utterance.
func (r *Recognizer) Finalize() error {
	if r.dgClient == nil {
		return fmt.Errorf("not started")
	}
	return r.dgClient.Finalize()
}

func (r *Recognizer) Events() <-chan recognizer.Event { return r.out }

// emit delivers one event to the consumer. Interim hypotheses may be shed
// under backpressure since the next one supersedes them, but terminal and
// lifecycle events are retried until delivered or the recognizer shuts down.
func (r *Recognizer) emit(ev recognizer.Event) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		select {
		case r.out <- ev:
			r.mu.Unlock()
			return
		default:
		}
		r.mu.Unlock()

		if ev.Type == recognizer.EventPartial {
			r.logger.Warn("deepgram_event_channel_full",
				slog.String("stream_id", r.cfg.StreamID),
				slog.String("event", string(ev.Type)))
			return
		}
		select {
		case <-r.ctxDone():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (r *Recognizer) ctxDone() <-chan struct{} {
	if r.ctx == nil {
		return nil
	}
	return r.ctx.Done()
}

// --- Callback Implementation ---

type callback struct {
	parent *Recognizer
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("stream_id", c.parent.cfg.StreamID))
	c.parent.emit(recognizer.Event{Type: recognizer.EventSessionStarted})
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}

	isFinal := mr.IsFinal || mr.SpeechFinal

	ev := recognizer.Event{Type: recognizer.EventPartial, Text: transcript}
	if isFinal {
		ev.Type = recognizer.EventFinal
		if c.parent.cfg.IncludeRaw {
			if raw, err := json.Marshal(mr); err == nil {
				ev.Raw = raw
			}
		}
	}

	c.parent.logger.Debug("transcript_received",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.Bool("is_final", isFinal))

	c.parent.emit(ev)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("stream_id", c.parent.cfg.StreamID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	// Finals already arrive via Message with SpeechFinal set; the separate
	// utterance-end marker carries no transcript and needs no translation.
	c.parent.logger.Debug("utterance_end_event",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("stream_id", c.parent.cfg.StreamID))
	c.parent.emit(recognizer.Event{Type: recognizer.EventSessionStopped})
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.parent.emit(recognizer.Event{
		Type:   recognizer.EventCanceled,
		Reason: er.ErrCode,
		Detail: er.ErrMsg,
	})
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("data", string(byData)))
	return nil
}

var _ recognizer.Recognizer = (*Recognizer)(nil)
