package protocol

import (
	"bufio"
	"io"
	"strings"
)

// QuitRecord is the literal control record that terminates a session
// with no reply.
const QuitRecord = "quit"

// FrameReader splits a byte stream into newline-terminated records,
// stripping a trailing \r, the way the teacher's mqtt.ReadPacket
// splits a byte stream into fixed-header-framed MQTT packets.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadRecord blocks for the next complete record. It returns io.EOF
// (or a wrapped net error) when the transport is gone.
func (f *FrameReader) ReadRecord() (string, error) {
	line, err := f.r.ReadString('\n')
	if err != nil {
		// A non-empty partial read followed immediately by EOF still
		// counts as a dangling, unterminated record; the transport is
		// closing either way, so surface the error and drop it.
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
