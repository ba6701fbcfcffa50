package wal

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/obsrouter/routercore/internal/checksum"
	"github.com/obsrouter/routercore/internal/encoding"
	"github.com/obsrouter/routercore/internal/testutil"
	"github.com/obsrouter/routercore/internal/vfs"
)

// ledgerFieldCount is the number of uint64 fields in the fixed layout.
const ledgerFieldCount = 6

// ledgerSize is the on-disk size of ledger.db: six uint64 fields plus a
// trailing CRC32C.
const ledgerSize = ledgerFieldCount*8 + 4

// Ledger is the durable buffer-wide metadata described in spec §3/§6:
// writer and reader positions, and running totals. Per the partitioning
// design in §9, writer-owned fields are only ever mutated by the writer
// goroutine and reader-owned fields only by the reader goroutine; all
// fields are atomics so the other side's cross-reads never race.
type Ledger struct {
	dir string
	fs  vfs.FS

	writerFileID       atomic.Uint64
	writerNextRecordID atomic.Uint64
	readerFileID       atomic.Uint64
	readerLastRecordID atomic.Uint64
	totalBufferBytes   atomic.Uint64
	totalRecords       atomic.Uint64
}

// LedgerSnapshot is a point-in-time copy of a Ledger's fields, used for
// serialization and for tests/tools that want a consistent read.
type LedgerSnapshot struct {
	WriterFileID       uint64
	WriterNextRecordID uint64
	ReaderFileID       uint64
	ReaderLastRecordID uint64
	TotalBufferBytes   uint64
	TotalRecords       uint64
}

// OpenLedger loads ledger.db from dir, or initializes a fresh zero-value
// ledger if the file does not exist.
func OpenLedger(fs vfs.FS, dir string) (*Ledger, error) {
	l := &Ledger{dir: dir, fs: fs}

	path := filepath.Join(dir, LedgerFileName)
	if !fs.Exists(path) {
		return l, nil
	}

	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger: %v", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, ledgerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", ErrIO, err)
	}

	snap, err := decodeLedger(buf)
	if err != nil {
		return nil, err
	}
	l.restore(snap)
	return l, nil
}

func decodeLedger(buf []byte) (LedgerSnapshot, error) {
	if len(buf) != ledgerSize {
		return LedgerSnapshot{}, fmt.Errorf("%w: ledger: wrong size %d", ErrCorruption, len(buf))
	}
	body := buf[:ledgerFieldCount*8]
	storedCRC := encoding.DecodeFixed32(buf[ledgerFieldCount*8:])
	if checksum.MaskedValue(body) != storedCRC {
		return LedgerSnapshot{}, fmt.Errorf("%w: ledger: checksum mismatch", ErrCorruption)
	}

	var snap LedgerSnapshot
	snap.WriterFileID = encoding.DecodeFixed64(body[0:8])
	snap.WriterNextRecordID = encoding.DecodeFixed64(body[8:16])
	snap.ReaderFileID = encoding.DecodeFixed64(body[16:24])
	snap.ReaderLastRecordID = encoding.DecodeFixed64(body[24:32])
	snap.TotalBufferBytes = encoding.DecodeFixed64(body[32:40])
	snap.TotalRecords = encoding.DecodeFixed64(body[40:48])
	return snap, nil
}

func (l *Ledger) restore(s LedgerSnapshot) {
	l.writerFileID.Store(s.WriterFileID)
	l.writerNextRecordID.Store(s.WriterNextRecordID)
	l.readerFileID.Store(s.ReaderFileID)
	l.readerLastRecordID.Store(s.ReaderLastRecordID)
	l.totalBufferBytes.Store(s.TotalBufferBytes)
	l.totalRecords.Store(s.TotalRecords)
}

// Snapshot copies the current field values. Individual field reads may be
// interleaved with concurrent writer/reader mutation; callers that need a
// fully consistent view should only rely on Snapshot for diagnostics, not
// as a basis for further mutation.
func (l *Ledger) Snapshot() LedgerSnapshot {
	return LedgerSnapshot{
		WriterFileID:       l.writerFileID.Load(),
		WriterNextRecordID: l.writerNextRecordID.Load(),
		ReaderFileID:       l.readerFileID.Load(),
		ReaderLastRecordID: l.readerLastRecordID.Load(),
		TotalBufferBytes:   l.totalBufferBytes.Load(),
		TotalRecords:       l.totalRecords.Load(),
	}
}

// Writer-owned field accessors. Only the writer goroutine calls the setters.

func (l *Ledger) WriterFileID() uint64            { return l.writerFileID.Load() }
func (l *Ledger) SetWriterFileID(id uint64)        { l.writerFileID.Store(id) }
func (l *Ledger) WriterNextRecordID() uint64       { return l.writerNextRecordID.Load() }
func (l *Ledger) SetWriterNextRecordID(id uint64)  { l.writerNextRecordID.Store(id) }

// AddBufferBytes is called by the writer after a successful append.
func (l *Ledger) AddBufferBytes(delta uint64) {
	l.totalBufferBytes.Add(delta)
	l.totalRecords.Add(1)
}

// Reader-owned field accessors. Only the reader goroutine calls the setters.

func (l *Ledger) ReaderFileID() uint64            { return l.readerFileID.Load() }
func (l *Ledger) SetReaderFileID(id uint64)        { l.readerFileID.Store(id) }
func (l *Ledger) ReaderLastRecordID() uint64       { return l.readerLastRecordID.Load() }
func (l *Ledger) SetReaderLastRecordID(id uint64)  { l.readerLastRecordID.Store(id) }

// ReleaseBufferBytes is called by the reader once an ack has been
// processed, shrinking total_buffer_size_bytes.
func (l *Ledger) ReleaseBufferBytes(delta uint64) {
	for {
		cur := l.totalBufferBytes.Load()
		next := cur - delta
		if delta > cur {
			next = 0
		}
		if l.totalBufferBytes.CompareAndSwap(cur, next) {
			return
		}
	}
}

// TotalBufferBytes reports total_buffer_size_bytes.
func (l *Ledger) TotalBufferBytes() uint64 { return l.totalBufferBytes.Load() }

// TotalRecords reports total_records.
func (l *Ledger) TotalRecords() uint64 { return l.totalRecords.Load() }

// UnreadEvents reports writer_next_record_id - reader_last_record_id, the
// invariant from spec §3.
func (l *Ledger) UnreadEvents() uint64 {
	next := l.writerNextRecordID.Load()
	last := l.readerLastRecordID.Load()
	if next < last {
		return 0
	}
	return next - last
}

// Flush durably persists the ledger via a copy-on-write temp+rename, the
// same atomic-publish pattern used for the file-tailer checkpoint: write
// ledger.db.tmp, sync it, close it, rename over ledger.db, then sync the
// containing directory so the rename itself survives a crash.
func (l *Ledger) Flush() error {
	testutil.MaybeKill(testutil.KPLedgerFlush0)

	snap := l.Snapshot()
	buf := make([]byte, ledgerSize)
	encoding.EncodeFixed64(buf[0:8], snap.WriterFileID)
	encoding.EncodeFixed64(buf[8:16], snap.WriterNextRecordID)
	encoding.EncodeFixed64(buf[16:24], snap.ReaderFileID)
	encoding.EncodeFixed64(buf[24:32], snap.ReaderLastRecordID)
	encoding.EncodeFixed64(buf[32:40], snap.TotalBufferBytes)
	encoding.EncodeFixed64(buf[40:48], snap.TotalRecords)
	crc := checksum.MaskedValue(buf[:ledgerFieldCount*8])
	encoding.EncodeFixed32(buf[ledgerFieldCount*8:], crc)

	tmpPath := filepath.Join(l.dir, LedgerFileName+".tmp")
	finalPath := filepath.Join(l.dir, LedgerFileName)

	f, err := l.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: create ledger tmp: %v", ErrIO, err)
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write ledger tmp: %v", ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync ledger tmp: %v", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close ledger tmp: %v", ErrIO, err)
	}
	if err := l.fs.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: rename ledger: %v", ErrIO, err)
	}
	if err := l.fs.SyncDir(l.dir); err != nil {
		return fmt.Errorf("%w: sync buffer dir: %v", ErrIO, err)
	}

	testutil.MaybeKill(testutil.KPLedgerFlush1)
	return nil
}
