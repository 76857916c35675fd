// Package server fronts the provider with the client-facing HTTP surface:
// the streaming recognition WebSocket, the one-shot transcription endpoint,
// and the health probe, all gated by the shared API key.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"

	"github.com/eduassist/speechgate/pkg/logging"
	"github.com/eduassist/speechgate/pkg/metrics"
	"github.com/eduassist/speechgate/pkg/recognizer"
)

type Config struct {
	Addr           string   `mapstructure:"addr"`
	APIKey         string   `mapstructure:"api_key"`
	StreamPath     string   `mapstructure:"stream_path"`
	TranscribePath string   `mapstructure:"transcribe_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Per-session recognition defaults, overridable per connection.
	DefaultLanguage   string   `mapstructure:"language"`
	DefaultEndpointID string   `mapstructure:"endpoint_id"`
	InitialSilenceMS  int      `mapstructure:"initial_silence_ms"`
	EndSilenceMS      int      `mapstructure:"end_silence_ms"`
	IncludeRaw        bool     `mapstructure:"include_raw"`
	Hints             []string `mapstructure:"hints"`

	NormalizeTarget  int     `mapstructure:"normalize_target"`
	NormalizeMaxGain float64 `mapstructure:"normalize_max_gain"`

	SendBuffer     int `mapstructure:"send_buffer"`
	WriteTimeoutMS int `mapstructure:"write_timeout_ms"`
	ReadyTimeoutMS int `mapstructure:"ready_timeout_ms"`
	SyncTimeoutMS  int `mapstructure:"sync_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.StreamPath == "" {
		c.StreamPath = "/v1/speech/stt/stream"
	}
	if c.TranscribePath == "" {
		c.TranscribePath = "/v1/speech/stt"
	}
	if c.InitialSilenceMS <= 0 {
		c.InitialSilenceMS = 4000
	}
	if c.EndSilenceMS <= 0 {
		c.EndSilenceMS = 800
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = 5000
	}
	if c.ReadyTimeoutMS <= 0 {
		c.ReadyTimeoutMS = 10000
	}
	if c.SyncTimeoutMS <= 0 {
		c.SyncTimeoutMS = 30000
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Server owns the HTTP listener and the set of live connections.
type Server struct {
	cfg      Config
	factory  recognizer.Factory
	obs      metrics.Observer
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[string]*conn

	draining atomic.Bool
}

func New(cfg Config, factory recognizer.Factory, obs metrics.Observer) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:     cfg,
		factory: factory,
		obs:     obs,
		logger:  logging.NewComponentLogger(slog.Default(), "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[string]*conn),
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

// Handler builds the route table: the streaming WebSocket, the one-shot
// transcription endpoint, and the health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.StreamPath, s.handleStream)
	mux.HandleFunc(s.cfg.TranscribePath, s.handleTranscribe)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           s.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
			sentry.CaptureException(err)
		}
	}()
	s.logger.Info("listening", slog.String("addr", s.cfg.Addr))
	return nil
}

// Drain closes active connections with a going-away handshake and stops the
// listener. Used by the lifecycle runner on shutdown.
func (s *Server) Drain() error {
	s.draining.Store(true)
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*conn)
	s.mu.Unlock()
	for _, c := range conns {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
	if s.server != nil {
		_ = s.server.Close()
	}
	return nil
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	s.conns[c.streamID] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.streamID)
	s.mu.Unlock()
}

// authorized checks the shared API key from the X-API-Key header or the
// api_key query parameter. A server with no key configured accepts nothing.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return false
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	return key == s.cfg.APIKey
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
