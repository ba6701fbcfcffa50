package wal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/obsrouter/routercore/internal/compression"
	"github.com/obsrouter/routercore/internal/logging"
	"github.com/obsrouter/routercore/internal/testutil"
	"github.com/obsrouter/routercore/internal/vfs"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	MaxRecordSize   int
	MaxDataFileSize int64
	MaxBufferSize   uint64
	Compression     compression.Type
	Logger          logging.Logger
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.MaxRecordSize <= 0 {
		o.MaxRecordSize = DefaultMaxRecordSize
	}
	if o.MaxDataFileSize <= 0 {
		o.MaxDataFileSize = DefaultMaxDataFileSize
	}
	if o.MaxBufferSize == 0 {
		o.MaxBufferSize = DefaultMaxBufferSize
	}
	if o.Logger == nil {
		o.Logger = logging.Discard
	}
	return o
}

// Writer appends records to a buffer directory's data files, rolling over
// to a new file ID when the current one is full and blocking when either
// the reader hasn't advanced past the next file ID or the buffer is over
// its size budget.
//
// A Writer is used by exactly one goroutine; it is not safe for concurrent
// Write calls, matching the single-writer contract in spec §3.
type Writer struct {
	opts   WriterOptions
	fs     vfs.FS
	dir    string
	ledger *Ledger

	mu        sync.Mutex
	cond      *sync.Cond
	curFileID uint16
	curFile   vfs.WritableFile
	curSize   int64
	closed    bool
}

// OpenWriter opens (or creates) the writer side of a buffer directory. If a
// data file already exists for the ledger's recorded writer file ID, its
// trailing partial frame (a torn write from a prior crash) is truncated
// before appends resume; the ledger's writer_next_record_id is left
// unmodified, which is the gap-without-reset behaviour spec §9 resolves to.
func OpenWriter(fs vfs.FS, dir string, ledger *Ledger, opts WriterOptions) (*Writer, error) {
	opts = opts.withDefaults()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create buffer dir: %v", ErrIO, err)
	}

	w := &Writer{opts: opts, fs: fs, dir: dir, ledger: ledger}
	w.cond = sync.NewCond(&w.mu)

	fileID := uint16(ledger.WriterFileID())
	if err := w.recoverOrOpen(fileID); err != nil {
		return nil, err
	}
	return w, nil
}

// recoverOrOpen reopens the data file for fileID, dropping any torn trailing
// frame left by a prior crash, and positions the writer to append after the
// last valid record. vfs.FS has no non-truncating writable open, so recovery
// reads the valid prefix into memory, recreates the file, and writes the
// prefix back before resuming appends; if the file doesn't exist yet it is
// simply created empty.
func (w *Writer) recoverOrOpen(fileID uint16) error {
	path := filepath.Join(w.dir, DataFileName(fileID))

	var validPrefix []byte
	if w.fs.Exists(path) {
		prefix, err := w.validPrefix(path)
		if err != nil {
			return err
		}
		validPrefix = prefix
	}

	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("%w: open data file %s: %v", ErrIO, path, err)
	}
	if len(validPrefix) > 0 {
		if _, err := f.Write(validPrefix); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: rewrite recovered prefix of %s: %v", ErrIO, path, err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: sync recovered prefix of %s: %v", ErrIO, path, err)
		}
	}

	w.curFile = f
	w.curFileID = fileID
	w.curSize = int64(len(validPrefix))
	w.ledger.SetWriterFileID(uint64(fileID))
	return nil
}

// validPrefix scans path's records sequentially and returns the leading
// bytes up to the first point a frame fails to parse or checksum, per the
// writer-restart failure semantics in spec §4.1: a torn trailing write from
// a crash mid-append is dropped, not treated as corruption of the file.
func (w *Writer) validPrefix(path string) ([]byte, error) {
	raf, err := w.fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open for recovery: %v", ErrIO, err)
	}
	defer func() { _ = raf.Close() }()

	size := raf.Size()
	var offset int64
	for offset+HeaderSize <= size {
		hdr := make([]byte, HeaderSize)
		if _, err := raf.ReadAt(hdr, offset); err != nil {
			break
		}
		h, err := DecodeHeader(hdr)
		if err != nil {
			break
		}
		payloadLen := h.PayloadLength()
		if payloadLen < 0 || offset+int64(HeaderSize+payloadLen) > size {
			break
		}
		rest := make([]byte, checksummedHeaderSize+payloadLen)
		if _, err := raf.ReadAt(rest, offset+LengthFieldSize); err != nil {
			break
		}
		if !VerifyChecksum(h, rest) {
			break
		}
		offset += int64(HeaderSize + payloadLen)
	}

	if offset == size {
		buf := make([]byte, size)
		if size > 0 {
			if _, err := raf.ReadAt(buf, 0); err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
			}
		}
		return buf, nil
	}

	w.opts.Logger.Warnf("%sdropping torn tail of %s at offset %d (file size %d)", logging.NSWAL, path, offset, size)
	buf := make([]byte, offset)
	if offset > 0 {
		if _, err := raf.ReadAt(buf, 0); err != nil {
			return nil, fmt.Errorf("%w: read recovered prefix of %s: %v", ErrIO, path, err)
		}
	}
	return buf, nil
}

// Write encodes eventCount events' worth of payload into one record and
// appends it, rolling over to a new data file and/or blocking for space as
// needed. It returns the assigned record ID and the number of bytes written
// (the full frame, including header). It blocks until there is room, ctx is
// done, or the writer is closed; on ctx cancellation it returns ctx.Err()
// without writing anything, per spec §5's "every blocking operation honours
// a shutdown token" rule. A downstream Reader unblocks a waiting Write by
// calling NotifyReaderAdvanced after an Ack.
func (w *Writer) Write(ctx context.Context, payload []byte, eventCount uint16) (recordID uint64, bytesWritten int, err error) {
	frame, eventCount, err := w.encodeFrame(payload, eventCount)
	if err != nil {
		return 0, 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, 0, ErrClosed
	}

	for w.ledger.TotalBufferBytes()+uint64(len(frame)) > w.opts.MaxBufferSize {
		if err := w.waitLocked(ctx); err != nil {
			return 0, 0, err
		}
		if w.closed {
			return 0, 0, ErrClosed
		}
	}

	if w.curSize+int64(len(frame)) > w.opts.MaxDataFileSize {
		if err := w.rollBlocking(ctx); err != nil {
			return 0, 0, err
		}
	}

	return w.appendLocked(frame, eventCount)
}

// TryWrite behaves like Write but never blocks: if the buffer is over its
// size budget, or rolling to the next data file would have to wait for the
// reader to vacate it, it returns ErrBufferFull immediately instead of
// waiting. DiskStage uses this for stages configured with a DropNewest (or
// Overflow) policy, per spec §4.2/§7's drop contract.
func (w *Writer) TryWrite(payload []byte, eventCount uint16) (recordID uint64, bytesWritten int, err error) {
	frame, eventCount, err := w.encodeFrame(payload, eventCount)
	if err != nil {
		return 0, 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, 0, ErrClosed
	}

	if w.ledger.TotalBufferBytes()+uint64(len(frame)) > w.opts.MaxBufferSize {
		return 0, 0, ErrBufferFull
	}

	if w.curSize+int64(len(frame)) > w.opts.MaxDataFileSize {
		if err := w.rollNonBlocking(); err != nil {
			return 0, 0, err
		}
	}

	return w.appendLocked(frame, eventCount)
}

// encodeFrame validates and encodes payload into a WAL frame, defaulting
// eventCount to 1.
func (w *Writer) encodeFrame(payload []byte, eventCount uint16) ([]byte, uint16, error) {
	if eventCount == 0 {
		eventCount = 1
	}
	frame, err := EncodeRecord(w.ledger.WriterNextRecordID(), eventCount, payload, w.opts.Compression)
	if err != nil {
		return nil, 0, err
	}
	if len(frame) > w.opts.MaxRecordSize {
		return nil, 0, ErrRecordTooLarge
	}
	return frame, eventCount, nil
}

// appendLocked writes frame to the current data file and advances the
// ledger. w.mu must be held.
func (w *Writer) appendLocked(frame []byte, eventCount uint16) (recordID uint64, bytesWritten int, err error) {
	testutil.MaybeKill(testutil.KPWALAppend0)

	recordID = w.ledger.WriterNextRecordID()
	n, err := w.curFile.Write(frame)
	if err != nil {
		return 0, n, fmt.Errorf("%w: append record: %v", ErrIO, err)
	}
	w.curSize += int64(n)

	w.ledger.SetWriterNextRecordID(recordID + uint64(eventCount))
	w.ledger.AddBufferBytes(uint64(len(frame)))
	if err := w.ledger.Flush(); err != nil {
		return recordID, n, err
	}

	return recordID, n, nil
}

// rollBlocking finalizes the current data file and advances to the next
// file ID, blocking until the reader has moved off that ID if it's still
// reading it, ctx is done, or the writer is closed. w.mu must be held.
func (w *Writer) rollBlocking(ctx context.Context) error {
	if err := w.closeCurrentLocked(); err != nil {
		return err
	}

	nextID := w.curFileID + 1
	for uint64(nextID) == w.ledger.ReaderFileID() {
		if err := w.waitLocked(ctx); err != nil {
			return err
		}
		if w.closed {
			return ErrClosed
		}
	}

	return w.openNextLocked(nextID)
}

// rollNonBlocking behaves like rollBlocking but reports ErrBufferFull
// instead of waiting when the reader still occupies the next file ID, and
// leaves the current file untouched in that case so a dropped write hasn't
// torn the active file. w.mu must be held.
func (w *Writer) rollNonBlocking() error {
	nextID := w.curFileID + 1
	if uint64(nextID) == w.ledger.ReaderFileID() {
		return ErrBufferFull
	}
	if err := w.closeCurrentLocked(); err != nil {
		return err
	}
	return w.openNextLocked(nextID)
}

func (w *Writer) closeCurrentLocked() error {
	testutil.MaybeKill(testutil.KPWALRoll0)
	if err := w.curFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync before roll: %v", ErrIO, err)
	}
	if err := w.curFile.Close(); err != nil {
		return fmt.Errorf("%w: close before roll: %v", ErrIO, err)
	}
	return nil
}

func (w *Writer) openNextLocked(nextID uint16) error {
	path := filepath.Join(w.dir, DataFileName(nextID))
	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create next data file: %v", ErrIO, err)
	}
	w.curFile = f
	w.curFileID = nextID
	w.curSize = 0
	w.ledger.SetWriterFileID(uint64(nextID))
	return nil
}

// waitLocked blocks on w.cond until woken by a Broadcast (from Close or
// NotifyReaderAdvanced) or ctx is done, then returns ctx.Err(). w.mu must
// be held on entry and is held again on return; callers must re-check
// their wait condition (and w.closed) afterward, since a nil return only
// means ctx wasn't the reason the wait ended. sync.Cond has no native
// context support, so a canceled ctx is turned into a Broadcast by a
// short-lived watcher goroutine.
func (w *Writer) waitLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-stop:
		}
	}()

	w.cond.Wait()

	close(stop)
	<-done
	return ctx.Err()
}

// NotifyReaderAdvanced wakes any writer blocked waiting for buffer space or
// for the reader to vacate a file ID. The reader calls this after
// processing an ack or advancing past a fully-acked file.
func (w *Writer) NotifyReaderAdvanced() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Flush syncs the current data file and the ledger.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	testutil.MaybeKill(testutil.KPWALSync0)
	if err := w.curFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync data file: %v", ErrIO, err)
	}
	testutil.MaybeKill(testutil.KPWALSync1)
	return w.ledger.Flush()
}

// Close flushes and closes the writer. After Close, Write returns
// ErrClosed and any blocked Write calls are woken to observe it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	err := w.curFile.Sync()
	if closeErr := w.curFile.Close(); err == nil {
		err = closeErr
	}
	w.closed = true
	w.cond.Broadcast()
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return w.ledger.Flush()
}

