package buffer

import (
	"context"
	"errors"
	"time"

	"github.com/obsrouter/routercore/internal/compression"
	"github.com/obsrouter/routercore/internal/event"
	"github.com/obsrouter/routercore/internal/logging"
	"github.com/obsrouter/routercore/internal/vfs"
	"github.com/obsrouter/routercore/internal/wal"
)

// pollInterval is how often Receive retries wal.Reader.Next when it
// returns (nil, nil) — "nothing ready yet" rather than end of stream. The
// WAL reader has no blocking wait-for-data primitive of its own, so the
// disk stage polls at a short, fixed interval instead of busy-spinning.
const pollInterval = 10 * time.Millisecond

// DiskStage persists events to a wal.Writer/wal.Reader pair, giving the
// buffer topology a durable, crash-recoverable stage per spec §4.1. Unlike
// MemoryStage it needs an explicit Acker: capacity is only released once
// the downstream sink has confirmed delivery.
type DiskStage struct {
	name     string
	whenFull WhenFull
	id       int
	writer   *wal.Writer
	reader   *wal.Reader
	ledger   *wal.Ledger
	logger   logging.Logger
	counters counters
	closed   bool
}

// DiskOptions configures a DiskStage.
type DiskOptions struct {
	Dir             string
	MaxRecordSize   int
	MaxDataFileSize int64
	MaxBufferSize   uint64
	Compression     compression.Type
	WhenFull        WhenFull
	Logger          logging.Logger
	Reporter        wal.Reporter
}

// NewDiskStage opens (or recovers) the on-disk WAL rooted at opts.Dir and
// wraps it as a buffer stage.
func NewDiskStage(fs vfs.FS, name string, id int, opts DiskOptions) (*DiskStage, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard
	}
	ledger, err := wal.OpenLedger(fs, opts.Dir)
	if err != nil {
		return nil, err
	}
	writer, err := wal.OpenWriter(fs, opts.Dir, ledger, wal.WriterOptions{
		MaxRecordSize:   opts.MaxRecordSize,
		MaxDataFileSize: opts.MaxDataFileSize,
		MaxBufferSize:   opts.MaxBufferSize,
		Compression:     opts.Compression,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	reader, err := wal.OpenReader(fs, opts.Dir, ledger, wal.ReaderOptions{
		Reporter: opts.Reporter,
		Logger:   opts.Logger,
		Notify:   writer.NotifyReaderAdvanced,
	})
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	return &DiskStage{
		name:     name,
		whenFull: opts.WhenFull,
		id:       id,
		writer:   writer,
		reader:   reader,
		ledger:   ledger,
		logger:   opts.Logger,
	}, nil
}

func (s *DiskStage) Name() string       { return s.name }
func (s *DiskStage) WhenFull() WhenFull { return s.whenFull }
func (s *DiskStage) Len() int           { return int(s.ledger.UnreadEvents()) }
func (s *DiskStage) Acker() Acker       { return s }
func (s *DiskStage) Usage() Usage       { return s.counters.snapshot() }

// Offer encodes ev and appends it to the WAL. Under Block policy a full
// buffer makes wal.Writer.Write itself block, honoring ctx, per spec §4.1
// and §5; DropNewest (or Overflow) uses wal.Writer.TryWrite instead, which
// never blocks, and treats ErrBufferFull as a drop rather than an error.
func (s *DiskStage) Offer(ctx context.Context, ev *event.Event) (OfferResult, error) {
	payload, err := event.Encode(ev)
	if err != nil {
		return Dropped, err
	}

	var n int
	if s.whenFull == Block {
		_, n, err = s.writer.Write(ctx, payload, 1)
	} else {
		_, n, err = s.writer.TryWrite(payload, 1)
	}
	if err != nil {
		if s.whenFull != Block && errors.Is(err, wal.ErrBufferFull) {
			s.counters.recordDropped(true)
			if f := ev.Finalizer(); f != nil {
				f.MarkRejected()
			}
			return Dropped, nil
		}
		if errors.Is(err, wal.ErrClosed) {
			return Dropped, ErrClosed
		}
		return Dropped, err
	}

	s.counters.recordReceived(n)
	s.counters.observeSize(s.ledger.TotalBufferBytes(), s.ledger.UnreadEvents())
	if s.ledger.TotalBufferBytes() >= s.maxBufferSizeHint() {
		return AcceptedAndFull, nil
	}
	return Accepted, nil
}

// maxBufferSizeHint is a conservative stand-in used only to decide between
// Accepted and AcceptedAndFull for overflow routing; the writer itself is
// the sole authority on whether a write actually blocks or fails.
func (s *DiskStage) maxBufferSizeHint() uint64 {
	return wal.DefaultMaxBufferSize
}

// Receive polls the WAL reader until a record is available, ctx ends, or
// the stream is drained.
func (s *DiskStage) Receive(ctx context.Context) (Item, error) {
	for {
		rec, err := s.reader.Next()
		if err != nil {
			// Corruption is recorded via the Reporter and the reader has
			// already advanced past it; keep polling for the next record
			// rather than surfacing it as a fatal stage error.
			if errors.Is(err, wal.ErrCorruption) {
				continue
			}
			return Item{}, err
		}
		if rec != nil {
			s.counters.recordSent(len(rec.Payload))
			ev, err := event.Decode(rec.Payload)
			if err != nil {
				// Can't reconstruct the event; ack it so the writer isn't
				// blocked on a record that can never be delivered, and
				// move on.
				_ = s.reader.Ack(rec)
				continue
			}
			return Item{Event: ev, StageID: s.id, token: rec}, nil
		}

		if s.reader.Drained(s.closed) {
			return Item{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Ack releases the WAL record behind item, implementing Acker.
func (s *DiskStage) Ack(item Item) error {
	rec, ok := item.token.(*wal.Record)
	if !ok || rec == nil {
		return nil
	}
	return s.reader.Ack(rec)
}

// Close flushes and closes the writer; the reader keeps draining any
// already-flushed records until Drained reports true.
func (s *DiskStage) Close() error {
	s.closed = true
	if err := s.writer.Close(); err != nil {
		return err
	}
	return s.reader.Close()
}
