package broker

// Subscriber is anything the broker can deliver a framed message to.
// *session.Session is the only production implementation; the
// interface exists so the broker package doesn't import session and
// so tests can use a trivial fake.
type Subscriber interface {
	// Deliver writes an already-framed record to the subscriber's
	// transport. It may block until the transport accepts the bytes;
	// *session.Session sets no write deadline.
	Deliver(b []byte) error
	// ID identifies the subscriber for logging.
	ID() string
}
