package buffer

import (
	"context"
	"fmt"

	"github.com/obsrouter/routercore/internal/event"
)

// Topology chains one or more stages per spec §4.2: a sender offers to
// stage 0; once an overflow stage reports AcceptedAndFull, subsequent offers
// start at stage 1, and an offer an overflow stage drops falls through to
// stage 1, and so on. The receiver is a fair drain that prefers the earliest
// stage and revisits it after each item pulled from a later one, bounding
// staleness of the primary ordering.
type Topology struct {
	stages   []Stage
	overflow []bool
	// fullFrom is the stage index Offer starts at. It is shared across all
	// offerers, not a per-offer cursor. It only moves forward: once an
	// overflow stage has reported AcceptedAndFull, later offers skip that
	// stage even after it has drained again.
	fullFrom int
	drainAt  int
}

// Config describes one stage in a topology, in the order they chain.
type Config struct {
	Stage    Stage
	Overflow bool // if true, AcceptedAndFull/Dropped routes to the next stage
}

// NewTopology composes stages into a single sender/receiver pair. Every
// stage but the last may declare Overflow; the last stage's policy (Block
// or DropNewest) is the chain's terminal behavior, per spec §9's resolution
// that an overflow producer eventually blocks once the terminal stage
// blocks.
func NewTopology(configs []Config) (*Topology, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("buffer: topology requires at least one stage")
	}
	stages := make([]Stage, len(configs))
	overflow := make([]bool, len(configs))
	for i, c := range configs {
		stages[i] = c.Stage
		overflow[i] = c.Overflow
	}
	return &Topology{stages: stages, overflow: overflow}, nil
}

// Offer routes ev through the chain starting at the lowest stage currently
// known to have capacity, falling through to later stages when an earlier
// one reports AcceptedAndFull or Dropped and was configured to overflow.
func (t *Topology) Offer(ctx context.Context, ev *event.Event) (OfferResult, error) {
	start := t.fullFrom
	for i := start; i < len(t.stages); i++ {
		last := i == len(t.stages)-1
		res, err := t.stages[i].Offer(ctx, ev)
		if err != nil {
			return res, err
		}
		switch res {
		case Accepted:
			if i == t.fullFrom && i > 0 {
				t.fullFrom = i
			}
			return Accepted, nil
		case AcceptedAndFull:
			if !last && t.overflow[i] {
				t.fullFrom = i + 1
			}
			return res, nil
		case Dropped:
			if last || !t.overflow[i] {
				return Dropped, nil
			}
			// Overflow: this stage couldn't take it (DropNewest under
			// pressure acting as an overflow trigger); try the next stage.
			continue
		}
	}
	return Dropped, nil
}

// Receive drains stage 0 preferentially; when it is empty, pulls one item
// from the next non-empty stage and then returns to stage 0, per spec
// §4.2's "revisit S1 after each S2 item" rule.
func (t *Topology) Receive(ctx context.Context) (Item, error) {
	if t.stages[0].Len() > 0 {
		return t.stages[0].Receive(ctx)
	}
	for i := 1; i < len(t.stages); i++ {
		if t.stages[i].Len() > 0 {
			item, err := t.stages[i].Receive(ctx)
			if err == nil && t.stages[0].Len() == 0 && i > t.drainAt {
				t.drainAt = i
			}
			return item, err
		}
	}
	// Nothing ready anywhere; block on the primary stage so the caller
	// isn't spun — it will unblock as soon as any producer offers there,
	// or ctx ends.
	return t.stages[0].Receive(ctx)
}

// Ack routes the acknowledgement back to the stage item.StageID names, per
// spec §4.2 ("records are tagged with their originating stage").
func (t *Topology) Ack(item Item) error {
	if item.StageID < 0 || item.StageID >= len(t.stages) {
		return fmt.Errorf("buffer: ack for unknown stage %d", item.StageID)
	}
	acker := t.stages[item.StageID].Acker()
	if acker == nil {
		return nil
	}
	return acker.Ack(item)
}

// Stages exposes the chain for usage reporting.
func (t *Topology) Stages() []Stage { return t.stages }

// Close closes every stage in the chain, in order.
func (t *Topology) Close() error {
	var first error
	for _, s := range t.stages {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
