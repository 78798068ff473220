// Package session implements the per-connection command loop
// described in spec.md §4.5.
package session

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/life-stream-dev/aiomemq/internal/broker"
	"github.com/life-stream-dev/aiomemq/internal/logger"
	"github.com/life-stream-dev/aiomemq/internal/protocol"
)

// Session is a live client: its transport, its read framing, and the
// broker it is registered against. Identity is by pointer — two
// sessions from the same remote address are distinct subscribers,
// distinguished in logs by a uuid rather than the shared address.
//
// writeMu serializes every write to conn. Under spec.md §5 model (b),
// a publisher's own session goroutine and any number of other
// sessions' goroutines (delivering a fan-out via Deliver) can write to
// this session's connection concurrently; without a lock a partial
// conn.Write from one frame can interleave with another, breaking the
// one-frame-per-line contract of spec.md §6.
type Session struct {
	conn    net.Conn
	id      string
	reader  *protocol.FrameReader
	broker  *broker.Broker
	writeMu sync.Mutex
}

// New wraps an accepted connection. It does not start the read loop;
// call Run for that.
func New(conn net.Conn, b *broker.Broker) *Session {
	connID := uuid.NewV4().String()

	return &Session{
		conn:   conn,
		id:     connID,
		reader: protocol.NewFrameReader(conn),
		broker: b,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Deliver writes an already-framed record to this session's
// transport. It satisfies broker.Subscriber. Another session's
// Publish fan-out calls this concurrently with this session's own
// command loop, so the write goes through s.send's lock.
func (s *Session) Deliver(b []byte) error {
	return s.send(b)
}

// Run drives the session's command loop to completion: reading (see
// spec.md §4.5's "reading" state) until a terminal transition (quit,
// disconnect, or transport error), then purging and closing.
func (s *Session) Run() {
	defer s.close()

	for {
		record, err := s.reader.ReadRecord()
		if err != nil {
			handleReadError(s.id, err)
			return
		}

		if record == protocol.QuitRecord {
			logger.InfoF("[%s] Client sent quit", s.id)
			return
		}

		if record == "" {
			continue
		}

		s.handleRecord(record)
	}
}

func (s *Session) handleRecord(record string) {
	msg, err := protocol.Decode(record)
	if err != nil {
		var violation protocol.Violation
		if errors.As(err, &violation) {
			logger.DebugF("[%s] Protocol violation: %s", s.id, violation)
			_ = s.send(protocol.EncodeFailure(string(violation)))
			return
		}
		logger.WarnF("[%s] Unexpected decode error: %v", s.id, err)
		return
	}

	switch msg.Command {
	case protocol.CommandSubscribe:
		s.handleSubscribe(msg)
	case protocol.CommandUnsubscribe:
		s.handleUnsubscribe(msg)
	case protocol.CommandSend:
		s.handleSend(msg)
	}
}

func (s *Session) handleSubscribe(msg protocol.Message) {
	topic := msg.Topic()
	s.broker.Subscribe(s, topic)
	_ = s.send(protocol.EncodeSuccess())

	if !msg.Cache() {
		return
	}

	for _, cached := range s.broker.CatchUp(topic, msg.LastSeen()) {
		framed, err := protocol.EncodeMessage(cached)
		if err != nil {
			logger.ErrorF("[%s] Failed to encode replayed message: %v", s.id, err)
			continue
		}
		if err := s.send(framed); err != nil {
			return
		}
	}
}

func (s *Session) handleUnsubscribe(msg protocol.Message) {
	s.broker.Unsubscribe(s, msg.Topic())
	_ = s.send(protocol.EncodeSuccess())
}

func (s *Session) handleSend(msg protocol.Message) {
	indexed, recipients := s.broker.Publish(msg)

	framed, err := protocol.EncodeMessage(indexed)
	if err != nil {
		logger.ErrorF("[%s] Failed to encode published message: %v", s.id, err)
	} else {
		for _, recipient := range recipients {
			if err := recipient.Deliver(framed); err != nil {
				logger.WarnF("[%s] Failed to deliver to %s: %v", s.id, recipient.ID(), err)
			}
		}
	}

	// The publisher is always acknowledged, even with zero recipients.
	_ = s.send(protocol.EncodeSuccess())
}

func (s *Session) close() {
	s.broker.Purge(s)
	logger.DebugF("[%s] Connection closed", s.id)
	if err := s.conn.Close(); err != nil && !isNetClosedError(err) {
		logger.WarnF("[%s] Error occurred while closing connection, details: %v", s.id, err)
	}
}

// send writes data to s.conn under writeMu, so a partial-write loop
// here can never interleave with a concurrent write from another
// goroutine delivering a fan-out to this same session.
func (s *Session) send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	total := 0
	for total < len(data) {
		n, err := s.conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", s.id, err)
			return err
		}
		total += n
	}
	return nil
}

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Timeout()
}

func handleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client closed connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.WarnF("[%s] Error occurred while reading, details: %v", connID, err)
	}
}
