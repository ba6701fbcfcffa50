package event

import (
	"sync"
	"sync/atomic"
)

// Status is the delivery outcome reported through a Finalizer.
type Status uint8

const (
	// Delivered means every consumer of the event acknowledged it.
	Delivered Status = iota
	// Errored means at least one consumer failed to deliver the event but
	// it may be retried.
	Errored
	// Rejected means at least one consumer permanently refused the event
	// (e.g. it failed transformation and has nowhere to go).
	Rejected
)

// combine applies the aggregation rule Rejected > Errored > Delivered: the
// worst outcome observed across every contributor wins.
func combine(a, b Status) Status {
	if a > b {
		return a
	}
	return b
}

// BatchNotifier is the single receiver of a group of Finalizers' outcomes,
// mirroring the way the teacher's write buffer manager funnels many
// reservation releases through one stall condition: callers Add a Finalizer
// per event fed into a batch, and Wait blocks until every one of them has
// reported, returning the aggregated Status.
//
// A BatchNotifier is used once: after Wait returns, create a new one for the
// next batch.
type BatchNotifier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	worst   Status
	done    bool
}

// NewBatchNotifier returns a notifier ready to track expected Finalizers.
//
//	n := NewBatchNotifier()
//	for _, e := range events {
//	    e.WithFinalizer(n.NewFinalizer())
//	}
//	sink.Send(events)
//	status := n.Wait()
func NewBatchNotifier() *BatchNotifier {
	n := &BatchNotifier{worst: Delivered}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// NewFinalizer registers one more outcome the notifier must collect before
// Wait can return, and hands back the handle the producer attaches to an
// Event.
func (n *BatchNotifier) NewFinalizer() *Finalizer {
	n.mu.Lock()
	n.pending++
	n.mu.Unlock()
	return &Finalizer{notifier: n}
}

func (n *BatchNotifier) report(s Status) {
	n.mu.Lock()
	n.worst = combine(n.worst, s)
	n.pending--
	if n.pending == 0 {
		n.done = true
		n.cond.Broadcast()
	}
	n.mu.Unlock()
}

// Wait blocks until every Finalizer issued by this notifier has reported,
// then returns the aggregated Status. Calling Wait with zero Finalizers
// issued returns Delivered immediately.
func (n *BatchNotifier) Wait() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	for !n.done && n.pending > 0 {
		n.cond.Wait()
	}
	return n.worst
}

// Finalizer is a single-use handle threaded through one event's journey
// from source to sink. One of MarkDelivered, MarkErrored, or MarkRejected
// reports its outcome; only the first call on a Finalizer is counted, and any
// later call on the same Finalizer is ignored.
type Finalizer struct {
	notifier *BatchNotifier
	reported atomic.Bool
}

// MarkDelivered reports successful delivery.
func (f *Finalizer) MarkDelivered() { f.report(Delivered) }

// MarkErrored reports a retryable delivery failure.
func (f *Finalizer) MarkErrored() { f.report(Errored) }

// MarkRejected reports a permanent delivery failure.
func (f *Finalizer) MarkRejected() { f.report(Rejected) }

func (f *Finalizer) report(s Status) {
	if f.reported.Swap(true) {
		return
	}
	f.notifier.report(s)
}
