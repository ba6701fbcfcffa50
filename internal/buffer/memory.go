package buffer

import (
	"context"

	"github.com/obsrouter/routercore/internal/event"
)

// MemoryStage is a bounded in-memory queue. It needs no explicit Acker:
// an item's capacity is released the moment Receive hands it to the
// caller, matching a plain channel's semantics — memory is reclaimed
// whether or not the downstream eventually acks.
type MemoryStage struct {
	name     string
	whenFull WhenFull
	id       int
	items    chan *event.Event
	cap      int
	counters counters
}

// MemoryOptions configures a MemoryStage.
type MemoryOptions struct {
	MaxEvents int
	WhenFull  WhenFull
}

// NewMemoryStage returns a memory stage with room for opts.MaxEvents
// events.
func NewMemoryStage(name string, id int, opts MemoryOptions) *MemoryStage {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 500
	}
	return &MemoryStage{
		name:     name,
		whenFull: opts.WhenFull,
		id:       id,
		items:    make(chan *event.Event, opts.MaxEvents),
		cap:      opts.MaxEvents,
	}
}

func (s *MemoryStage) Name() string       { return s.name }
func (s *MemoryStage) WhenFull() WhenFull { return s.whenFull }
func (s *MemoryStage) Len() int           { return len(s.items) }
func (s *MemoryStage) Acker() Acker       { return nil }
func (s *MemoryStage) Usage() Usage       { return s.counters.snapshot() }

// Offer enqueues ev. Under Block it blocks until there is room or ctx is
// done; under DropNewest or as an overflow target it performs a
// non-blocking send and reports Dropped/Accepted accordingly.
func (s *MemoryStage) Offer(ctx context.Context, ev *event.Event) (OfferResult, error) {
	size := approximateSize(ev)
	switch s.whenFull {
	case Block:
		select {
		case s.items <- ev:
			s.counters.recordReceived(size)
			s.counters.observeSize(uint64(size*len(s.items)), uint64(len(s.items)))
			return s.fullness(), nil
		case <-ctx.Done():
			return Dropped, ctx.Err()
		}
	default:
		select {
		case s.items <- ev:
			s.counters.recordReceived(size)
			s.counters.observeSize(uint64(size*len(s.items)), uint64(len(s.items)))
			return s.fullness(), nil
		default:
			s.counters.recordDropped(true)
			if f := ev.Finalizer(); f != nil {
				f.MarkRejected()
			}
			return Dropped, nil
		}
	}
}

func (s *MemoryStage) fullness() OfferResult {
	if len(s.items) >= s.cap {
		return AcceptedAndFull
	}
	return Accepted
}

// Receive blocks until an event is queued, ctx is done, or the stage is
// closed and drained.
func (s *MemoryStage) Receive(ctx context.Context) (Item, error) {
	select {
	case ev, ok := <-s.items:
		if !ok {
			return Item{}, ErrClosed
		}
		s.counters.recordSent(approximateSize(ev))
		return Item{Event: ev, StageID: s.id}, nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

// Close stops further offers from succeeding once drained; already-queued
// items remain receivable.
func (s *MemoryStage) Close() error {
	close(s.items)
	return nil
}

// approximateSize estimates an event's footprint for usage accounting
// purposes; it need not be exact, only monotonic in the event's actual
// payload size.
func approximateSize(ev *event.Event) int {
	if ev == nil || ev.Fields == nil {
		return 0
	}
	size := 0
	for _, k := range ev.Fields.Keys() {
		v, _ := ev.Fields.Get(k)
		if b, ok := v.Bytes(); ok {
			size += len(b)
		} else {
			size += 8
		}
		size += len(k)
	}
	return size
}
