package tcpsource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/obsrouter/routercore/internal/event"
	"github.com/obsrouter/routercore/internal/logging"
)

// connState is the acceptor's connection lifecycle per spec §4.4:
// Accepted → (TLS handshake) → Framing → Draining → Closed.
type connState uint8

const (
	stateAccepted connState = iota
	stateHandshake
	stateFraming
	stateDraining
	stateClosed
)

// errBatchErrored and errBatchRejected close a connection after its acker
// has written the corresponding status bytes back to the peer.
var (
	errBatchErrored  = errors.New("tcpsource: batch errored")
	errBatchRejected = errors.New("tcpsource: batch rejected")
)

const readChunkSize = 32 * 1024

// Conn is the per-connection state machine: it reads bytes, decodes them
// into event frames, dispatches each frame downstream, and — when the
// source is configured for end-to-end acknowledgement — writes the acker's
// status bytes back before reading the next frame.
type Conn struct {
	raw      net.Conn
	cfg      Config
	logger   logging.Logger
	inflight *InFlightLimiter
	state    connState
}

func newConn(raw net.Conn, cfg Config, logger logging.Logger, inflight *InFlightLimiter) *Conn {
	if cfg.MaxConnectionDuration > 0 {
		_ = raw.SetDeadline(time.Now().Add(cfg.MaxConnectionDuration))
	}
	return &Conn{raw: raw, cfg: cfg, logger: logger, inflight: inflight, state: stateAccepted}
}

// run drives the connection through its full lifecycle and returns the
// reason it closed (nil for a clean peer-initiated close).
func (c *Conn) run(ctx context.Context) error {
	defer c.raw.Close()

	if err := c.handshake(ctx); err != nil {
		return err
	}

	c.state = stateFraming
	err := c.frameLoop(ctx)
	c.state = stateDraining
	return err
}

// handshake completes the TLS handshake, if any, as a first-class
// cancellable state (spec §9: "Treat the handshake as a first-class state
// so that shutdown tokens can cancel pending handshakes").
func (c *Conn) handshake(ctx context.Context) error {
	tlsConn, ok := c.raw.(*tls.Conn)
	if !ok {
		return nil
	}
	c.state = stateHandshake
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tcpsource: tls handshake: %w", err)
	}
	return nil
}

// frameLoop reads bytes, hands the unconsumed buffer to the decoder
// repeatedly, and dispatches every decoded frame.
func (c *Conn) frameLoop(ctx context.Context) error {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	for {
		n, readErr := c.raw.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}

		for {
			frame, consumed, decErr := c.cfg.Decoder.Decode(buf)
			if consumed == 0 && decErr == nil {
				break // need more bytes before a frame is available
			}
			if consumed > 0 {
				buf = buf[consumed:]
			}
			if decErr != nil {
				if fatalDecodeError(decErr) {
					return decErr
				}
				c.logger.Warnf("%sskipped unframeable bytes on %s: %v", logging.NSTCP, c.raw.RemoteAddr(), decErr)
				continue
			}
			if len(frame.Events) == 0 {
				continue
			}
			if err := c.dispatch(ctx, frame.Events); err != nil {
				return err
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

func fatalDecodeError(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Fatal
	}
	return true
}

// dispatch attaches a batch notifier to every event in the frame, offers
// each downstream, and — for ack-configured sources — awaits the
// aggregated status before writing back per the table in spec §4.4.
func (c *Conn) dispatch(ctx context.Context, events []*event.Event) error {
	n := int64(len(events))
	if err := c.inflight.Acquire(ctx, n); err != nil {
		return err
	}

	notifier := event.NewBatchNotifier()
	for _, ev := range events {
		ev.WithFinalizer(notifier.NewFinalizer())
	}

	var offerErr error
	for _, ev := range events {
		if offerErr != nil {
			// Downstream already failed this batch; the remaining events
			// were never offered, so report them the same way.
			ev.Finalizer().MarkErrored()
			continue
		}
		if _, err := c.cfg.Sink.Offer(ctx, ev); err != nil {
			offerErr = err
			ev.Finalizer().MarkErrored()
		}
	}

	if !c.cfg.RequireAck {
		go func() {
			notifier.Wait()
			c.inflight.Release(n)
		}()
		return offerErr
	}

	status := notifier.Wait()
	c.inflight.Release(n)
	return c.acknowledge(status)
}

func (c *Conn) acknowledge(status event.Status) error {
	switch status {
	case event.Delivered:
		_, err := c.raw.Write(c.cfg.Acker.AckBytes())
		return err
	case event.Errored:
		_, _ = c.raw.Write(c.cfg.Acker.ErrorBytes())
		return errBatchErrored
	default:
		_, _ = c.raw.Write(c.cfg.Acker.RejectBytes())
		return errBatchRejected
	}
}

// halfClose shuts down the write half to signal the peer during a graceful
// shutdown drain. The read half stays open until the connection finishes or
// the grace period elapses; writes after this, ack bytes included, fail.
func (c *Conn) halfClose() {
	type writeCloser interface{ CloseWrite() error }
	if wc, ok := c.raw.(writeCloser); ok {
		_ = wc.CloseWrite()
	}
}

func (c *Conn) forceClose() {
	_ = c.raw.Close()
}
