// Package buffer implements the sink-side buffer topology: one or more
// stages (in-memory queue, on-disk WAL) chained with an overflow policy, a
// fair-drain receiver, and a periodic usage reporter.
package buffer

import (
	"context"
	"errors"

	"github.com/obsrouter/routercore/internal/event"
)

// WhenFull is the policy a stage applies when it cannot accept more events.
type WhenFull uint8

const (
	// Block waits for capacity before accepting the offered event.
	Block WhenFull = iota
	// DropNewest refuses the offered event immediately, reporting a drop.
	DropNewest
	// Overflow hands the event to the next stage in the chain.
	Overflow
)

func (w WhenFull) String() string {
	switch w {
	case Block:
		return "block"
	case DropNewest:
		return "drop_newest"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Offer/Receive once a stage has been closed.
var ErrClosed = errors.New("buffer: stage closed")

// OfferResult reports what happened to an offered event.
type OfferResult uint8

const (
	// Accepted means the stage took the event and still has headroom.
	Accepted OfferResult = iota
	// AcceptedAndFull means the stage took the event but is now at
	// capacity; per spec §4.2 this is the composition's cue to route
	// subsequent offers directly to the next stage.
	AcceptedAndFull
	// Dropped means the stage refused the event under DropNewest policy.
	Dropped
)

// Item is one record moving through a stage, tagged with the stage that
// accepted it so an Ack routes back to the right acknowledger (spec §4.2:
// "Acks are routed back to the stage that accepted the record").
type Item struct {
	Event   *event.Event
	StageID int
	token   any
}

// Acker releases capacity for a previously received Item once its delivery
// outcome is known.
type Acker interface {
	Ack(item Item) error
}

// Stage is one layer of a buffer topology: a bounded channel of events
// (memory) or a WAL-backed durable queue (disk). Offer and Receive must be
// safe for concurrent use by their respective single caller (one producer,
// one consumer) as in the disk WAL's single-writer/single-reader contract;
// a memory stage additionally tolerates concurrent producers.
type Stage interface {
	// Name identifies the stage for usage reporting and logs.
	Name() string
	// WhenFull reports this stage's full-queue policy.
	WhenFull() WhenFull
	// Offer attempts to accept ev. It blocks only when WhenFull is Block
	// and the stage is full; ctx cancellation unblocks it with ctx.Err().
	Offer(ctx context.Context, ev *event.Event) (OfferResult, error)
	// Receive blocks until an item is available, ctx is done, or the stage
	// is closed and drained (returns ErrClosed).
	Receive(ctx context.Context) (Item, error)
	// Len reports the number of items currently held by the stage.
	Len() int
	// Acker returns the stage's acknowledger, or nil if the stage needs no
	// explicit ack (e.g. an in-memory stage releases capacity on Receive).
	Acker() Acker
	// Usage returns a point-in-time snapshot of the stage's counters.
	Usage() Usage
	// Close stops accepting new offers; already-queued items remain
	// receivable until drained.
	Close() error
}
