package buffer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/obsrouter/routercore/internal/logging"
)

// Usage is a point-in-time counter snapshot for one stage, matching the
// per-stage metrics named in spec §6: received/sent/dropped events and
// bytes, split by intentional vs. unintentional drops, plus the stage's
// current high-water mark.
type Usage struct {
	ReceivedEvents       uint64
	ReceivedBytes        uint64
	SentEvents           uint64
	SentBytes            uint64
	DroppedEventsIntent  uint64
	DroppedEventsUnwant  uint64
	MaxSizeBytes         uint64
	MaxSizeEvents        uint64
}

// counters holds the atomic fields a stage updates as it moves items; Usage
// is a plain copy taken from this for reporting.
type counters struct {
	receivedEvents      atomic.Uint64
	receivedBytes       atomic.Uint64
	sentEvents          atomic.Uint64
	sentBytes           atomic.Uint64
	droppedEventsIntent atomic.Uint64
	droppedEventsUnwant atomic.Uint64
	maxSizeBytes        atomic.Uint64
	maxSizeEvents       atomic.Uint64
}

func (c *counters) snapshot() Usage {
	return Usage{
		ReceivedEvents:      c.receivedEvents.Load(),
		ReceivedBytes:       c.receivedBytes.Load(),
		SentEvents:          c.sentEvents.Load(),
		SentBytes:           c.sentBytes.Load(),
		DroppedEventsIntent: c.droppedEventsIntent.Load(),
		DroppedEventsUnwant: c.droppedEventsUnwant.Load(),
		MaxSizeBytes:        c.maxSizeBytes.Load(),
		MaxSizeEvents:       c.maxSizeEvents.Load(),
	}
}

func (c *counters) recordReceived(bytes int) {
	c.receivedEvents.Add(1)
	c.receivedBytes.Add(uint64(bytes))
}

func (c *counters) recordSent(bytes int) {
	c.sentEvents.Add(1)
	c.sentBytes.Add(uint64(bytes))
}

func (c *counters) recordDropped(intentional bool) {
	if intentional {
		c.droppedEventsIntent.Add(1)
	} else {
		c.droppedEventsUnwant.Add(1)
	}
}

func (c *counters) observeSize(sizeBytes, sizeEvents uint64) {
	for {
		cur := c.maxSizeBytes.Load()
		if sizeBytes <= cur || c.maxSizeBytes.CompareAndSwap(cur, sizeBytes) {
			break
		}
	}
	for {
		cur := c.maxSizeEvents.Load()
		if sizeEvents <= cur || c.maxSizeEvents.CompareAndSwap(cur, sizeEvents) {
			break
		}
	}
}

// ReportInterval is the fixed cadence at which a Reporter emits stage usage,
// per spec §4.2 ("the reporter emits aggregated metrics every 2 s per
// stage").
const ReportInterval = 2 * time.Second

// Sink receives periodic usage snapshots, one call per stage per tick.
type Sink interface {
	ReportUsage(stageName string, u Usage)
}

// LogSink is a Sink that writes each snapshot through a Logger; it exists
// mainly for environments with no metrics backend wired in.
type LogSink struct {
	Logger logging.Logger
}

func (s LogSink) ReportUsage(stageName string, u Usage) {
	s.Logger.Debugf("%sstage=%s received=%d/%dB sent=%d/%dB dropped=%d/%d max=%d/%dB",
		logging.NSBuffer, stageName,
		u.ReceivedEvents, u.ReceivedBytes, u.SentEvents, u.SentBytes,
		u.DroppedEventsIntent+u.DroppedEventsUnwant, u.DroppedEventsIntent,
		u.MaxSizeEvents, u.MaxSizeBytes)
}

// Reporter drives a single ticker-driven goroutine that snapshots and emits
// every stage's Usage every ReportInterval, grounded on the periodic
// snapshot-and-emit design used for buffer usage data in the source this
// module's buffer package generalizes.
type Reporter struct {
	sink   Sink
	stages []Stage
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter starts one goroutine that reports every stage on each tick;
// call Stop to end it.
func NewReporter(ctx context.Context, sink Sink, stages []Stage) *Reporter {
	ctx, cancel := context.WithCancel(ctx)
	r := &Reporter{sink: sink, stages: stages, cancel: cancel, done: make(chan struct{})}
	go r.run(ctx)
	return r
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range r.stages {
				r.sink.ReportUsage(s.Name(), s.Usage())
			}
		}
	}
}

// Stop cancels the reporter's goroutine and waits for it to exit.
func (r *Reporter) Stop() {
	r.cancel()
	<-r.done
}
