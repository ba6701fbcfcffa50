package wal

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/obsrouter/routercore/internal/compression"
	"github.com/obsrouter/routercore/internal/encoding"
	"github.com/obsrouter/routercore/internal/logging"
	"github.com/obsrouter/routercore/internal/testutil"
	"github.com/obsrouter/routercore/internal/vfs"
)

// Reporter receives an advisory notice whenever Next returns a Corruption
// error, in addition to the error itself. It exists for logging/metrics
// wiring; nothing in the reader depends on it being non-trivial.
type Reporter interface {
	Corruption(bytesSkipped int, recordID uint64, err error)
}

// NopReporter implements Reporter with no-ops.
type NopReporter struct{}

func (NopReporter) Corruption(int, uint64, error) {}

// Record is one decoded WAL entry returned by Reader.Next.
type Record struct {
	RecordID   uint64
	EventCount uint16
	Payload    []byte

	fileID     uint16
	frameBytes int
}

// Reader reads records from a buffer directory in the order the writer
// appended them, advancing across data-file boundaries and deleting files
// once every record in them has been acknowledged.
//
// A Reader is used by exactly one goroutine, matching the single-reader
// contract in spec §3.
type Reader struct {
	fs       vfs.FS
	dir      string
	ledger   *Ledger
	reporter Reporter
	logger   logging.Logger

	notify func()

	mu         sync.Mutex
	curFileID  uint16
	curFile    vfs.RandomAccessFile
	curOffset  int64
	pending    []pendingRecord
	expectNext uint64
}

// pendingRecord tracks an unacknowledged record so Ack can release its
// bytes from the ledger's running total and, once every record read from a
// file has been acked, that file can be removed.
type pendingRecord struct {
	fileID     uint16
	frameBytes int
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Reporter Reporter
	Logger   logging.Logger

	// Notify, if set, is called whenever the reader's position advances in
	// a way that might unblock a Writer waiting for buffer space or for a
	// file ID to be vacated — after Ack and after moving to a later data
	// file. Typically wal.Writer.NotifyReaderAdvanced.
	Notify func()
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
	if o.Logger == nil {
		o.Logger = logging.Discard
	}
	if o.Notify == nil {
		o.Notify = func() {}
	}
	return o
}

// OpenReader opens the reader side of a buffer directory at the position
// recorded in ledger.
func OpenReader(fs vfs.FS, dir string, ledger *Ledger, opts ReaderOptions) (*Reader, error) {
	opts = opts.withDefaults()
	r := &Reader{
		fs:         fs,
		dir:        dir,
		ledger:     ledger,
		reporter:   opts.Reporter,
		logger:     opts.Logger,
		notify:     opts.Notify,
		expectNext: ledger.ReaderLastRecordID(),
	}

	fileID := uint16(ledger.ReaderFileID())
	if err := r.openFile(fileID); err != nil {
		return nil, err
	}
	// Skip frames at the start of the file that were acknowledged before a
	// restart, so they are not read (or reported as corruption) again.
	for r.curFile != nil && r.curOffset+HeaderSize <= r.curFile.Size() {
		hdr := make([]byte, HeaderSize)
		if _, err := r.curFile.ReadAt(hdr, r.curOffset); err != nil {
			break
		}
		h, err := DecodeHeader(hdr)
		if err != nil || h.PayloadLength() < 0 || h.RecordID+uint64(h.EventCount) > r.expectNext {
			break
		}
		r.curOffset += int64(HeaderSize + h.PayloadLength())
	}
	return r, nil
}

func (r *Reader) openFile(fileID uint16) error {
	path := filepath.Join(r.dir, DataFileName(fileID))
	if r.curFile != nil {
		_ = r.curFile.Close()
		r.curFile = nil
	}
	if !r.fs.Exists(path) {
		r.curFileID = fileID
		r.curFile = nil
		r.curOffset = 0
		return nil
	}
	f, err := r.fs.OpenRandomAccess(path)
	if err != nil {
		return fmt.Errorf("%w: open data file %s: %v", ErrIO, path, err)
	}
	r.curFileID = fileID
	r.curFile = f
	r.curOffset = 0
	r.ledger.SetReaderFileID(uint64(fileID))
	return nil
}

// Next returns the next unread record. It returns (nil, nil) when there is
// currently nothing to read — either the writer hasn't produced more data
// yet, or (use Drained to distinguish) the writer has closed and every
// record has been delivered. A frame whose checksum fails, whose length
// header is inconsistent, or whose record ID doesn't follow the previous
// one is corruption: Next returns a Corruption-wrapped error for that call,
// the bad record is dropped and counted as acknowledged so the writer isn't
// blocked on it, and the next call resumes from the following frame.
func (r *Reader) Next() (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.curFile == nil {
		opened, err := r.tryOpenCurrent()
		if err != nil {
			return nil, err
		}
		if !opened {
			return nil, nil
		}
	}

	size := r.curFile.Size()
	if r.curOffset+HeaderSize > size {
		advanced, err := r.tryAdvanceFile()
		if err != nil {
			return nil, err
		}
		if !advanced {
			return nil, nil
		}
		size = r.curFile.Size()
		if r.curOffset+HeaderSize > size {
			return nil, nil
		}
	}

	return r.readOneLocked(size)
}

// readOneLocked decodes and validates exactly one frame at r.curOffset.
func (r *Reader) readOneLocked(size int64) (*Record, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := r.curFile.ReadAt(hdr, r.curOffset); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrIO, err)
	}

	// Pull the record ID directly, independent of DecodeHeader's stricter
	// validation, so a corrupt-but-structurally-present ID can still be
	// used to keep the writer's progress unblocked (spec §4.1: "its ID is
	// counted as acknowledged").
	rawRecordID := encoding.DecodeFixed64(hdr[8:16])
	rawEventCount := encoding.DecodeFixed16(hdr[16:18])

	h, err := DecodeHeader(hdr)
	if err != nil {
		return r.corrupt(HeaderSize, rawRecordID, rawEventCount, err)
	}

	payloadLen := h.PayloadLength()
	if payloadLen < 0 || r.curOffset+int64(HeaderSize+payloadLen) > size {
		return r.corrupt(HeaderSize, h.RecordID, h.EventCount, ErrCorruption)
	}

	rest := make([]byte, checksummedHeaderSize+payloadLen)
	if _, err := r.curFile.ReadAt(rest, r.curOffset+LengthFieldSize); err != nil {
		return nil, fmt.Errorf("%w: read record body: %v", ErrIO, err)
	}
	frameBytes := HeaderSize + payloadLen

	if !VerifyChecksum(h, rest) {
		return r.corrupt(frameBytes, h.RecordID, h.EventCount, ErrCorruption)
	}
	if h.RecordID != r.expectNext {
		return r.corrupt(frameBytes, h.RecordID, h.EventCount, ErrCorruption)
	}

	encodedPayload := rest[checksummedHeaderSize:]
	payload := encodedPayload
	if comp := h.Metadata.Compression(); comp != compression.NoCompression {
		decoded, err := compression.Decompress(comp, encodedPayload)
		if err != nil {
			return r.corrupt(frameBytes, h.RecordID, h.EventCount, fmt.Errorf("%w: decompress: %v", ErrCorruption, err))
		}
		payload = decoded
	}

	r.curOffset += int64(frameBytes)
	r.expectNext = h.RecordID + uint64(h.EventCount)

	rec := &Record{
		RecordID:   h.RecordID,
		EventCount: h.EventCount,
		Payload:    payload,
		fileID:     r.curFileID,
		frameBytes: frameBytes,
	}
	r.pending = append(r.pending, pendingRecord{fileID: rec.fileID, frameBytes: rec.frameBytes})
	return rec, nil
}

// corrupt drops the frame at the reader's current offset: it advances past
// it, reports it, and treats its ID range as acknowledged (releasing its
// bytes and advancing reader_last_record_id) so the writer can still make
// progress even though the data was lost.
func (r *Reader) corrupt(frameBytes int, recordID uint64, eventCount uint16, cause error) (*Record, error) {
	r.curOffset += int64(frameBytes)
	if eventCount == 0 {
		eventCount = 1
	}
	r.expectNext = recordID + uint64(eventCount)

	r.ledger.ReleaseBufferBytes(uint64(frameBytes))
	r.ledger.SetReaderLastRecordID(recordID + uint64(eventCount))
	if err := r.ledger.Flush(); err != nil {
		r.logger.Warnf("%sflush after corruption recovery: %v", logging.NSWAL, err)
	}
	r.notify()

	r.reporter.Corruption(frameBytes, recordID, cause)
	return nil, fmt.Errorf("%w: record %d", ErrCorruption, recordID)
}

// tryOpenCurrent opens the data file at r.curFileID if it now exists. It
// reports false when the writer hasn't created that file yet, meaning
// there's nothing to read until it does.
func (r *Reader) tryOpenCurrent() (bool, error) {
	path := filepath.Join(r.dir, DataFileName(r.curFileID))
	if !r.fs.Exists(path) {
		return false, nil
	}
	if err := r.openFile(r.curFileID); err != nil {
		return false, err
	}
	return true, nil
}

// tryAdvanceFile moves to the next data file ID if the writer has moved
// past the current one (writer_file_id > reader's current file), per the
// rollover handshake in spec §9: the reader only advances once it knows the
// writer will never append to this file ID again. It reports false, nil
// when there is nothing more to read yet.
func (r *Reader) tryAdvanceFile() (bool, error) {
	nextID := r.curFileID + 1
	if uint64(r.curFileID) >= r.ledger.WriterFileID() {
		return false, nil
	}
	if err := r.openFile(nextID); err != nil {
		return false, err
	}
	// A Writer's roll may be blocked waiting for nextID to be vacated.
	r.notify()
	return true, nil
}

// Drained reports whether the writer has closed and the reader has
// consumed every record it wrote, i.e. the point at which Next's (nil, nil)
// means true end-of-stream rather than "nothing ready yet".
func (r *Reader) Drained(writerClosed bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !writerClosed {
		return false
	}
	size := int64(0)
	if r.curFile != nil {
		size = r.curFile.Size()
	}
	return uint64(r.curFileID) >= r.ledger.WriterFileID() && r.curOffset >= size
}

// Ack acknowledges rec as durably processed downstream: its bytes are
// released from the ledger's running total, the ledger's reader position is
// advanced, and the source data file is removed once every record read
// from it has been acked and the writer has moved on to a later file. A
// file whose last record is acked before the writer rolls past it is
// deleted on a later Ack call once both conditions hold; nothing currently
// re-checks stale, already-empty file IDs outside of an Ack call. Releasing
// bytes here may let a Writer blocked in Write proceed, so Ack wakes it via
// notify before returning.
func (r *Reader) Ack(rec *Record) error {
	testutil.MaybeKill(testutil.KPWALSync0)

	r.mu.Lock()
	idx := -1
	for i, p := range r.pending {
		if p.fileID == rec.fileID && p.frameBytes == rec.frameBytes {
			idx = i
			break
		}
	}
	var toDelete uint16
	deleteFile := false
	if idx >= 0 {
		r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
		stillPendingInFile := false
		for _, p := range r.pending {
			if p.fileID == rec.fileID {
				stillPendingInFile = true
				break
			}
		}
		if !stillPendingInFile && uint64(rec.fileID) < r.ledger.WriterFileID() {
			toDelete = rec.fileID
			deleteFile = true
		}
	}
	r.mu.Unlock()

	r.ledger.ReleaseBufferBytes(uint64(rec.frameBytes))
	r.ledger.SetReaderLastRecordID(rec.RecordID + uint64(rec.EventCount))
	r.notify()

	if deleteFile {
		path := filepath.Join(r.dir, DataFileName(toDelete))
		if err := r.fs.Remove(path); err != nil {
			r.logger.Warnf("%sremove acknowledged data file %s: %v", logging.NSWAL, path, err)
		}
	}

	return r.ledger.Flush()
}

// Close releases the reader's open file handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.curFile == nil {
		return nil
	}
	err := r.curFile.Close()
	r.curFile = nil
	return err
}
