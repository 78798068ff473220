package protocol

import "encoding/json"

// Message wraps a decoded command exactly as received, so it can be
// echoed back to subscribers verbatim (plus an assigned index) per
// spec.md §4.4 step 3 ("annotate the command object in place").
type Message struct {
	Command string
	raw     map[string]interface{}
}

func (m Message) Topic() string {
	return m.raw["topic"].(string)
}

func (m Message) Msg() string {
	return m.raw["msg"].(string)
}

func (m Message) Delivery() string {
	return m.raw["delivery"].(string)
}

// Cache reports the effective value of the optional "cache" field,
// defaulting to true when absent.
func (m Message) Cache() bool {
	v, ok := m.raw["cache"]
	if !ok {
		return true
	}
	return v.(bool)
}

// LastSeen reports the effective value of the optional "last_seen"
// field, defaulting to -1 when absent.
func (m Message) LastSeen() int64 {
	v, ok := m.raw["last_seen"]
	if !ok {
		return -1
	}
	n, _ := v.(json.Number).Int64()
	return n
}

// Index reads back the broker-assigned index, if any has been set.
func (m Message) Index() int64 {
	switch v := m.raw["index"].(type) {
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return -1
	}
}

// WithIndex returns a copy of m with "index" set to idx. The copy
// shares no mutable state with m's originating decode buffer.
func (m Message) WithIndex(idx int64) Message {
	clone := make(map[string]interface{}, len(m.raw)+1)
	for k, v := range m.raw {
		clone[k] = v
	}
	clone["index"] = idx
	return Message{Command: m.Command, raw: clone}
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}
