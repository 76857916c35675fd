package protocol

import "encoding/json"

// Control event names recognized on inbound text messages.
const (
	ControlStop = "stop"
)

// Control is a parsed inbound text message.
type Control struct {
	Event string `json:"event"`
}

// ParseControl decodes an inbound text payload. It returns ok=false for
// non-JSON text, JSON without a recognized event, or anything else outside
// the control vocabulary; such messages are ignored upstream so newer
// clients can speak a richer protocol against older servers.
func ParseControl(payload []byte) (Control, bool) {
	var ctl Control
	if err := json.Unmarshal(payload, &ctl); err != nil {
		return Control{}, false
	}
	if ctl.Event != ControlStop {
		return Control{}, false
	}
	return ctl, true
}
