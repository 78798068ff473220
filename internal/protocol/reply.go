package protocol

import "encoding/json"

type successReply struct {
	Success bool `json:"success"`
}

type failureReply struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// EncodeSuccess renders the fixed success reply, framed per spec.md §6.
func EncodeSuccess() []byte {
	b, _ := json.Marshal(successReply{Success: true})
	return frame(b)
}

// EncodeFailure renders a failure reply carrying reason, framed per spec.md §6.
func EncodeFailure(reason string) []byte {
	b, _ := json.Marshal(failureReply{Success: false, Reason: reason})
	return frame(b)
}

// EncodeMessage renders a delivered or replayed message, framed per spec.md §6.
func EncodeMessage(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return frame(b), nil
}

func frame(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	out = append(out, b...)
	out = append(out, '\r', '\n')
	return out
}
