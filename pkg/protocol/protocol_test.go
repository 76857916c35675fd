package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseControlStop(t *testing.T) {
	ctrl, ok := ParseControl([]byte(`{"event":"stop"}`))
	if !ok {
		t.Fatalf("expected stop to parse")
	}
	if ctrl.Event != ControlStop {
		t.Fatalf("expected stop event, got %q", ctrl.Event)
	}
}

func TestParseControlRejectsNoise(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{}`,
		`{"event":"pause"}`,
		`{"event":"STOP"}`,
		`[1,2,3]`,
	}
	for _, raw := range cases {
		if _, ok := ParseControl([]byte(raw)); ok {
			t.Fatalf("parsed %q as control", raw)
		}
	}
}

func TestMessageOmitsEmptyFields(t *testing.T) {
	buf, err := json.Marshal(Ready())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m) != 1 || m["type"] != string(TypeReady) {
		t.Fatalf("expected only type field, got %v", m)
	}
}

func TestFinalCarriesUtteranceAndRaw(t *testing.T) {
	raw := json.RawMessage(`{"confidence":0.97}`)
	buf, err := json.Marshal(Final(3, "hello there", raw))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m struct {
		Type      string          `json:"type"`
		Text      string          `json:"text"`
		Utterance int             `json:"utterance"`
		Raw       json.RawMessage `json:"raw"`
	}
	if err := json.Unmarshal(buf, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Type != string(TypeFinal) || m.Text != "hello there" || m.Utterance != 3 {
		t.Fatalf("unexpected message: %+v", m)
	}
	if string(m.Raw) != `{"confidence":0.97}` {
		t.Fatalf("raw payload mangled: %s", m.Raw)
	}
}

func TestErrorMessage(t *testing.T) {
	msg := Error(2, "stt_canceled", "recognition canceled")
	if msg.Type != TypeError || msg.Reason != "stt_canceled" || msg.Error != "recognition canceled" {
		t.Fatalf("unexpected error message: %+v", msg)
	}
}

func TestStopAck(t *testing.T) {
	msg := StopAck()
	if msg.Type != TypeInfo || msg.Event != InfoStopAck {
		t.Fatalf("unexpected stop ack: %+v", msg)
	}
}
