package tcpsource

// Acker supplies the wire bytes written back to a connection once a decoded
// batch's aggregated finalizer status is known. It is produced by the
// source implementation (the wire protocol in use), not by the acceptor
// itself — the acceptor only knows Delivered/Errored/Rejected and which
// bytes to emit for each.
type Acker interface {
	AckBytes() []byte
	ErrorBytes() []byte
	RejectBytes() []byte
}

// NoopAcker participates in no acknowledgement protocol: batches are
// dispatched best-effort and the connection keeps reading without waiting
// for delivery status. Use this for protocols that never ack.
type NoopAcker struct{}

func (NoopAcker) AckBytes() []byte    { return nil }
func (NoopAcker) ErrorBytes() []byte  { return nil }
func (NoopAcker) RejectBytes() []byte { return nil }
