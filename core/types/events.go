package types

// Event is the wire-friendly representation of a structured state change
// emitted by the funding engine and payment queue. Attributes are flat string
// pairs so RPC subscribers and indexers can consume them without schema
// knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy of the event so emitters can hand the same payload
// to multiple subscribers without aliasing the attribute map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := &Event{Type: e.Type}
	if len(e.Attributes) > 0 {
		out.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
