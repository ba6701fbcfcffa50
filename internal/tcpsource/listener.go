package tcpsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/obsrouter/routercore/internal/buffer"
	"github.com/obsrouter/routercore/internal/event"
	"github.com/obsrouter/routercore/internal/logging"
)

// defaultMaxConnections bounds the connection-count admission semaphore
// when Config.MaxConnections is left unset.
const defaultMaxConnections = 1024

// defaultShutdownGrace is how long live connections are given to drain
// after a shutdown signal before being force-closed.
const defaultShutdownGrace = 5 * time.Second

// Sink accepts one decoded event at a time from a connection. A
// *buffer.Topology or a single *buffer stage satisfies this.
type Sink interface {
	Offer(ctx context.Context, ev *event.Event) (buffer.OfferResult, error)
}

// Config configures one TCP acceptor.
type Config struct {
	// Addr is the listen address, e.g. ":9000".
	Addr string

	// TLS, if set, terminates TLS on every accepted connection.
	TLS *tls.Config

	// MaxConnections bounds concurrent live connections; accept() is not
	// called again until a permit is released. Default 1024.
	MaxConnections int

	// AllowedPeers, if non-empty, restricts admission to these source IPs;
	// everything else is closed immediately at accept time.
	AllowedPeers []net.IP

	// InFlightTarget bounds events in flight across all connections served
	// by this listener; 0 disables the limit.
	InFlightTarget int

	// MaxConnectionDuration closes a connection once it has been open this
	// long, independent of the shutdown grace period. 0 disables it.
	MaxConnectionDuration time.Duration

	// ShutdownGrace is how long existing connections may drain after
	// Serve's context is cancelled before being force-closed. Default 5s.
	ShutdownGrace time.Duration

	// Decoder frame-decodes the connection's byte stream into events.
	Decoder Decoder

	// Sink is where decoded events are offered.
	Sink Sink

	// RequireAck selects the per-batch acknowledgement protocol: when
	// true, the acceptor awaits each batch's aggregated status and writes
	// Acker's bytes back before reading the next frame. When false,
	// batches are dispatched best-effort.
	RequireAck bool

	// Acker supplies the ack/error/reject bytes written back when
	// RequireAck is set. Defaults to NoopAcker if nil.
	Acker Acker
}

// Listener is a running TCP acceptor: the accept loop, the admission
// semaphore, the in-flight limiter, and the set of live connections.
type Listener struct {
	cfg      Config
	logger   logging.Logger
	sem      chan struct{}
	inflight *InFlightLimiter

	mu        sync.Mutex
	conns     map[*Conn]struct{}
	wg        sync.WaitGroup
	boundAddr net.Addr

	rejected uint64

	ready chan struct{}
}

// NewListener prepares a Listener; call Serve to actually accept.
func NewListener(cfg Config, logger logging.Logger) *Listener {
	if logger == nil {
		logger = logging.Discard
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.Acker == nil {
		cfg.Acker = NoopAcker{}
	}
	return &Listener{
		cfg:      cfg,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConnections),
		inflight: NewInFlightLimiter(cfg.InFlightTarget),
		conns:    make(map[*Conn]struct{}),
		ready:    make(chan struct{}),
	}
}

// Addr blocks until Serve has bound its listener, then returns its address.
func (l *Listener) Addr() net.Addr {
	<-l.ready
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.boundAddr
}

// Serve accepts connections until ctx is cancelled, then drains existing
// connections for ShutdownGrace before force-closing the stragglers. It
// returns once every connection has closed.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("tcpsource: listen %s: %w", l.cfg.Addr, err)
	}
	if l.cfg.TLS != nil {
		ln = tls.NewListener(ln, l.cfg.TLS)
	}

	l.mu.Lock()
	l.boundAddr = ln.Addr()
	l.mu.Unlock()
	close(l.ready)

	closeOnDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-closeOnDone:
		}
	}()
	defer close(closeOnDone)

	l.logger.Infof("%slistening on %s", logging.NSTCP, l.cfg.Addr)

	for {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return l.drain()
		}

		raw, err := ln.Accept()
		if err != nil {
			<-l.sem
			if ctx.Err() != nil {
				return l.drain()
			}
			l.logger.Warnf("%saccept: %v", logging.NSTCP, err)
			continue
		}

		if !l.peerAllowed(raw) {
			l.rejected++
			_ = raw.Close()
			<-l.sem
			continue
		}

		c := newConn(raw, l.cfg, l.logger, l.inflight)
		l.track(c)
		l.wg.Add(1)
		go l.handle(ctx, c)
	}
}

func (l *Listener) handle(ctx context.Context, c *Conn) {
	defer func() {
		<-l.sem
		l.untrack(c)
		l.wg.Done()
	}()
	if err := c.run(ctx); err != nil {
		l.logger.Debugf("%sconnection %s closed: %v", logging.NSTCP, c.raw.RemoteAddr(), err)
	}
}

func (l *Listener) peerAllowed(conn net.Conn) bool {
	if len(l.cfg.AllowedPeers) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	for _, allowed := range l.cfg.AllowedPeers {
		if allowed.Equal(ip) {
			return true
		}
	}
	return false
}

func (l *Listener) track(c *Conn) {
	l.mu.Lock()
	l.conns[c] = struct{}{}
	l.mu.Unlock()
}

func (l *Listener) untrack(c *Conn) {
	l.mu.Lock()
	delete(l.conns, c)
	l.mu.Unlock()
}

// drain half-closes every live connection to signal the peer, waits up to
// ShutdownGrace for them to finish on their own, then force-closes whatever
// remains.
func (l *Listener) drain() error {
	grace := l.cfg.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}

	l.mu.Lock()
	for c := range l.conns {
		c.halfClose()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		l.mu.Lock()
		for c := range l.conns {
			c.forceClose()
		}
		l.mu.Unlock()
		<-done
		return nil
	}
}

// RejectedConnections reports how many connections were refused by the
// peer-IP allowlist since Serve started.
func (l *Listener) RejectedConnections() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}
