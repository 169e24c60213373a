package core

import "encoding/json"

// Envelope is the wire shape of every event in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Encode(ev Outbound) (Frame, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Payload: payload})
}

// MustEncode is for events built from values that always marshal.
func MustEncode(ev Outbound) Frame {
	f, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return f
}
