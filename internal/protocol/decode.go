package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"unicode/utf8"
)

// Decode implements spec.md §4.1's three-step decode: UTF-8 validity,
// JSON syntax, then object-shape and per-command schema validation.
func Decode(record string) (Message, error) {
	b := []byte(record)

	if !utf8.Valid(b) {
		return Message{}, ViolationUTF8
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Message{}, ViolationJSON
	}
	if _, err := dec.Token(); err != io.EOF {
		// Anything but whitespace after the first value.
		return Message{}, ViolationJSON
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return Message{}, ViolationSchema
	}

	name, ok := obj["command"].(string)
	if !ok {
		return Message{}, ViolationSchema
	}

	sch, ok := schemas[name]
	if !ok || !sch.matches(obj) {
		return Message{}, ViolationSchema
	}

	return Message{Command: name, raw: obj}, nil
}
