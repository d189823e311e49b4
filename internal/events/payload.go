package events

import (
	"encoding/json"
)

// Payload is the outcome of decoding one log value: either a structured event
// or the raw value together with the reason it could not be decoded.
type Payload struct {
	Event *LogEntry
	Raw   string
	Err   error
}

// Decoded wraps a structured event.
func Decoded(e *LogEntry) Payload {
	return Payload{Event: e}
}

// Undecoded wraps a value that did not decode.
func Undecoded(raw string, err error) Payload {
	return Payload{Raw: raw, Err: err}
}

// Decode attempts a structured decode of a log value. It never fails: a value
// that does not decode is kept verbatim.
func Decode(value string) Payload {
	var entry LogEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return Undecoded(value, err)
	}
	return Decoded(&entry)
}

// OK reports whether the payload holds a structured event.
func (p Payload) OK() bool {
	return p.Event != nil
}

// MarshalJSON renders the event, or the raw value as a JSON string when undecoded.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Event != nil {
		return json.Marshal(p.Event)
	}
	return json.Marshal(p.Raw)
}
