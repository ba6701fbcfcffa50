// Package tcpsource implements the TCP acceptor: connection admission,
// optional TLS termination, frame decoding, per-batch acknowledgement, and
// cooperative in-flight backpressure across connections.
package tcpsource

import (
	"fmt"

	"github.com/obsrouter/routercore/internal/event"
)

// Frame is one decoded unit produced by a Decoder: zero or more events. How
// many input bytes were consumed to produce it is reported separately by
// Decode's second return value.
type Frame struct {
	Events []*event.Event
}

// Decoder turns a stream of bytes into frames of decoded events. Decode is
// called repeatedly with the connection's unconsumed read buffer.
//
// If no complete frame is available yet, Decode returns a zero Frame,
// consumed == 0, and a nil error; the caller reads more bytes and retries.
// Otherwise consumed reports how many leading bytes of data were used,
// whether or not err is set — a recoverable error still advances past the
// bad frame rather than re-parsing it forever.
type Decoder interface {
	Decode(data []byte) (frame Frame, consumed int, err error)
}

// DecodeError wraps a decoder failure, reporting whether the connection
// should continue (a single bad frame skipped) or close (Fatal).
type DecodeError struct {
	Err   error
	Fatal bool
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tcpsource: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
