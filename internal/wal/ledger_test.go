package wal

import (
	"testing"

	"github.com/obsrouter/routercore/internal/vfs"
)

func TestLedgerOpenMissingIsZeroValue(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLedger(vfs.Default(), dir)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	snap := l.Snapshot()
	if snap != (LedgerSnapshot{}) {
		t.Errorf("fresh ledger snapshot = %+v, want zero value", snap)
	}
}

func TestLedgerFlushAndReopen(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.Default()

	l, err := OpenLedger(fs, dir)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	l.SetWriterFileID(3)
	l.SetWriterNextRecordID(100)
	l.AddBufferBytes(256)
	l.SetReaderFileID(1)
	l.SetReaderLastRecordID(50)

	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	l2, err := OpenLedger(fs, dir)
	if err != nil {
		t.Fatalf("reopen OpenLedger: %v", err)
	}
	got := l2.Snapshot()
	want := LedgerSnapshot{
		WriterFileID:       3,
		WriterNextRecordID: 100,
		ReaderFileID:       1,
		ReaderLastRecordID: 50,
		TotalBufferBytes:   256,
		TotalRecords:       1,
	}
	if got != want {
		t.Errorf("reopened snapshot = %+v, want %+v", got, want)
	}
}

func TestLedgerUnreadEvents(t *testing.T) {
	l := &Ledger{}
	l.SetWriterNextRecordID(100)
	l.SetReaderLastRecordID(40)
	if got := l.UnreadEvents(); got != 60 {
		t.Errorf("UnreadEvents = %d, want 60", got)
	}
}

func TestLedgerReleaseBufferBytesClampsAtZero(t *testing.T) {
	l := &Ledger{}
	l.AddBufferBytes(10)
	l.ReleaseBufferBytes(100)
	if got := l.TotalBufferBytes(); got != 0 {
		t.Errorf("TotalBufferBytes = %d, want 0", got)
	}
}

func TestDecodeLedgerRejectsWrongSize(t *testing.T) {
	if _, err := decodeLedger(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for wrong-size buffer")
	}
}

func TestDecodeLedgerRejectsBadChecksum(t *testing.T) {
	buf := make([]byte, ledgerSize)
	if _, err := decodeLedger(buf); err == nil {
		t.Fatalf("expected checksum error for all-zero buffer with zero CRC mismatch")
	}
}
