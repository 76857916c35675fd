package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eduassist/speechgate/pkg/errorsx"
	"github.com/eduassist/speechgate/pkg/protocol"
	"github.com/eduassist/speechgate/pkg/recognizer"
	"github.com/eduassist/speechgate/pkg/session"
)

// conn supervises one WebSocket connection: authentication, the ready
// handshake, inbound dispatch, and teardown. All outbound JSON goes through
// the single-writer sink so messages never interleave on the wire.
type conn struct {
	streamID string
	ws       *websocket.Conn
	sink     *wsSink
	sess     *session.Session
	logger   *slog.Logger
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	streamID := uuid.NewString()
	logger := s.logger.With(slog.String("stream_id", streamID))

	if !s.authorized(r) {
		logger.Warn("rejecting unauthenticated connection",
			slog.String("reason_code", string(errorsx.ReasonUnauthorized)))
		// No ready is ever sent here; one error, then the 4401 close.
		_ = ws.WriteJSON(protocol.Error(0, string(errorsx.ReasonUnauthorized), "invalid or missing API key"))
		msg := websocket.FormatCloseMessage(protocol.CloseUnauthorized, "unauthorized")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	cfg := s.sessionConfig(r, streamID)
	rec := s.factory(cfg)
	sink := newWSSink(ws, s.cfg.SendBuffer, time.Duration(s.cfg.WriteTimeoutMS)*time.Millisecond)
	sess := session.New(cfg, rec, sink, session.Options{
		Logger:           s.logger,
		Observer:         s.obs,
		Normalize:        parseBool(r.URL.Query().Get("normalize")),
		NormalizeTarget:  s.cfg.NormalizeTarget,
		NormalizeMaxGain: s.cfg.NormalizeMaxGain,
	})

	c := &conn{streamID: streamID, ws: ws, sink: sink, sess: sess, logger: logger}
	s.register(c)
	defer s.unregister(c)
	defer sink.Close()
	defer ws.Close()

	if err := sess.Start(r.Context()); err != nil {
		reason := errorsx.Reason(err)
		if reason == errorsx.ReasonUnknown {
			reason = errorsx.ReasonSTTConnect
		}
		logger.Error("recognizer start failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(reason)))
		_ = sink.Send(protocol.Error(0, string(reason), err.Error()))
		sess.Close("recognizer start failed")
		c.shutdown(websocket.CloseInternalServerErr, "recognizer unavailable")
		return
	}
	defer sess.Close("connection closed")

	// Suspend inbound processing until the provider confirms listening.
	select {
	case <-sess.Ready():
	case <-time.After(time.Duration(s.cfg.ReadyTimeoutMS) * time.Millisecond):
		logger.Error("recognizer ready timeout",
			slog.String("reason_code", string(errorsx.ReasonSTTConnect)))
		_ = sink.Send(protocol.Error(0, string(errorsx.ReasonSTTConnect), "recognizer not ready"))
		c.shutdown(websocket.CloseInternalServerErr, "recognizer not ready")
		return
	}

	logger.Info("session ready",
		slog.String("language", cfg.Language),
		slog.String("endpoint_id", cfg.EndpointID))

	// The provider event stream ending means no further recognition results
	// can arrive; unblock the read loop so the connection winds down.
	go func() {
		<-sess.Done()
		c.shutdown(websocket.CloseNormalClosure, "recognizer stream ended")
	}()

	c.readLoop()
}

func (c *conn) readLoop() {
	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection closed", slog.String("error", err.Error()))
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if err := c.sess.HandleAudio(payload); err != nil {
				c.logger.Error("audio forward failed",
					slog.String("error", err.Error()),
					slog.String("reason_code", string(errorsx.ReasonSTTSend)))
			}
		case websocket.TextMessage:
			ctl, ok := protocol.ParseControl(payload)
			if !ok {
				// Forward compatibility: unknown text is ignored, not an error.
				continue
			}
			if ctl.Event == protocol.ControlStop {
				c.sess.HandleStop()
			}
		}
	}
}

// shutdown sends a close frame and tears the socket down. WriteControl is
// safe concurrently with the writer goroutine.
func (c *conn) shutdown(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.ws.Close()
}

func (s *Server) sessionConfig(r *http.Request, streamID string) recognizer.Config {
	q := r.URL.Query()
	cfg := recognizer.Config{
		StreamID:         streamID,
		TraceID:          uuid.NewString(),
		Language:         s.cfg.DefaultLanguage,
		EndpointID:       s.cfg.DefaultEndpointID,
		InitialSilenceMS: s.cfg.InitialSilenceMS,
		EndSilenceMS:     s.cfg.EndSilenceMS,
		Hints:            s.cfg.Hints,
		IncludeRaw:       s.cfg.IncludeRaw,
	}
	if v := q.Get("language"); v != "" {
		cfg.Language = v
	}
	if v := q.Get("endpoint_id"); v != "" {
		cfg.EndpointID = v
	}
	return cfg.WithDefaults()
}

var errSinkClosed = errors.New("connection writer closed")

// wsSink serializes all outbound JSON onto one writer goroutine. Send blocks
// briefly when the buffer is full rather than dropping protocol messages;
// a connection that cannot drain within the write timeout is given up on.
type wsSink struct {
	ws      *websocket.Conn
	ch      chan protocol.Message
	done    chan struct{}
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSSink(ws *websocket.Conn, buffer int, timeout time.Duration) *wsSink {
	s := &wsSink{
		ws:      ws,
		ch:      make(chan protocol.Message, buffer),
		done:    make(chan struct{}),
		timeout: timeout,
	}
	go s.loop()
	return s
}

func (s *wsSink) Send(msg protocol.Message) error {
	select {
	case <-s.done:
		return errSinkClosed
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return errSinkClosed
	case <-time.After(s.timeout):
		return errors.New("outbound buffer full")
	}
}

func (s *wsSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *wsSink) loop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.ch:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.timeout))
			if err := s.ws.WriteJSON(msg); err != nil {
				s.Close()
				return
			}
		}
	}
}
