package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eduassist/speechgate/pkg/audio"
	"github.com/eduassist/speechgate/pkg/errorsx"
	"github.com/eduassist/speechgate/pkg/frames"
	"github.com/eduassist/speechgate/pkg/recognizer"
)

const maxSyncBody = 32 << 20

// chunk size for feeding the recognizer: ~100 ms of PCM16 at 16 kHz.
const syncChunkBytes = 3200

type transcribeResponse struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// handleTranscribe is the synchronous one-shot endpoint: the whole utterance
// arrives as raw PCM16 in the request body, is streamed through a recognizer,
// and the final transcript comes back as JSON.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, string(errorsx.ReasonUnauthorized), "invalid or missing API key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSyncBody))
	if err != nil || len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "missing audio payload")
		return
	}
	if err := audio.ValidatePCM16(body); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, string(errorsx.ReasonBadFrame), err.Error())
		return
	}

	cfg := s.sessionConfig(r, uuid.NewString())
	rec := s.factory(cfg)
	if err := rec.Start(r.Context()); err != nil {
		s.logger.Error("recognizer start failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.ReasonSTTConnect)))
		writeJSONError(w, http.StatusBadGateway, string(errorsx.ReasonSTTConnect), err.Error())
		return
	}
	defer rec.Close()

	go func() {
		for off := 0; off < len(body); off += syncChunkBytes {
			end := off + syncChunkBytes
			if end > len(body) {
				end = len(body)
			}
			frame := frames.NewAudioFrame(cfg.StreamID, time.Now().UnixNano(), body[off:end], cfg.SampleRate, 1, nil)
			if err := rec.PushAudio(frame); err != nil {
				return
			}
		}
		_ = rec.Finalize()
	}()

	deadline := time.After(time.Duration(s.cfg.SyncTimeoutMS) * time.Millisecond)
	for {
		select {
		case ev, ok := <-rec.Events():
			if !ok {
				writeJSONError(w, http.StatusUnprocessableEntity, "no_match", "no speech recognized")
				return
			}
			switch ev.Type {
			case recognizer.EventFinal:
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(transcribeResponse{Text: ev.Text, Raw: ev.Raw})
				return
			case recognizer.EventCanceled:
				if errorsx.BenignCancel(ev.Reason) {
					continue
				}
				writeJSONError(w, http.StatusBadGateway, ev.Reason, ev.Detail)
				return
			}
		case <-deadline:
			writeJSONError(w, http.StatusGatewayTimeout, "timeout", "no final result before deadline")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSONError(w http.ResponseWriter, status int, reason, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"type":   "error",
		"reason": reason,
		"error":  detail,
	})
}
