// Package server implements the TCP acceptor described in spec.md §4.6.
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/life-stream-dev/aiomemq/internal/broker"
	"github.com/life-stream-dev/aiomemq/internal/logger"
	"github.com/life-stream-dev/aiomemq/internal/session"
)

// maxConcurrentSessions bounds how many sessions may be mid-handshake
// or mid-command-loop at once, the same buffered-semaphore pattern
// the teacher used to bound concurrent MQTT connections.
const maxConcurrentSessions = 10000

// Acceptor listens on a loopback TCP port and spawns a session per
// accepted connection.
type Acceptor struct {
	broker *broker.Broker
	sem    chan struct{}
}

func New(b *broker.Broker) *Acceptor {
	return &Acceptor{
		broker: b,
		sem:    make(chan struct{}, maxConcurrentSessions),
	}
}

// Serve binds port and accepts connections until ctx is cancelled or
// the listener errors. Each accepted connection gets its own session
// goroutine; Serve does not wait for in-flight sessions to finish
// before returning, matching spec.md §5's "no cancellation/timeouts"
// for individual sessions.
func (a *Acceptor) Serve(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	logger.InfoF("aiomemq listening on %s", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			logger.ErrorF("Accept error: %v", err)
			continue
		}

		logger.DebugF("Accepted connection from %s", conn.RemoteAddr().String())

		a.sem <- struct{}{}
		go func(c net.Conn) {
			defer func() { <-a.sem }()
			session.New(c, a.broker).Run()
		}(conn)
	}
}
