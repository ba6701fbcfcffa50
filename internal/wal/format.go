// Package wal implements the disk write-ahead log used to buffer events
// between a single writer and a single reader.
//
// Records are length-prefixed, checksummed frames appended to a sequence of
// data files. A companion ledger file durably tracks the writer's and
// reader's positions so the buffer can resume after a restart without
// re-reading data it already knows is either written or acknowledged.
//
// File Format (one data file):
//
//	record | record | record | ...
//
// Record Format:
//
//	+--------+-------+-----------+------+----------+---------+
//	| Length | CRC32C| RecordID  |Count | Metadata | Payload |
//	| 4B LE  | 4B    | 8B LE     | 2B LE| 1B       | variable|
//	+--------+-------+-----------+------+----------+---------+
//
// Length covers every field after itself (CRC32C through Payload). CRC32C is
// the Castagnoli checksum over the bytes after the CRC32C field (RecordID
// through Payload), masked the way internal/checksum masks WAL checksums. RecordID is monotonic per writer;
// the next record's ID is this record's ID plus its event count. Metadata
// packs a format version in bits 0-3 and flags (currently just the
// compression algorithm) in bits 4-7.
package wal

import (
	"errors"
	"fmt"

	"github.com/obsrouter/routercore/internal/checksum"
	"github.com/obsrouter/routercore/internal/compression"
	"github.com/obsrouter/routercore/internal/encoding"
)

// FormatVersion is the current WAL record format version, stored in the low
// nibble of the metadata byte.
const FormatVersion = 2

// HeaderSize is the size of everything in a record before the payload:
// length (4) + CRC32C (4) + record ID (8) + event count (2) + metadata (1).
const HeaderSize = 19

// LengthFieldSize is the size of the leading record-length field, which is
// not itself covered by Length or the checksum.
const LengthFieldSize = 4

// checksummedHeaderSize is HeaderSize minus the length field: the portion of
// the header that Length and CRC32C both cover.
const checksummedHeaderSize = HeaderSize - LengthFieldSize

// DefaultMaxRecordSize bounds a single record's encoded frame, header included.
const DefaultMaxRecordSize = 8 << 20 // 8 MiB

// DefaultMaxDataFileSize bounds a single data file before rollover.
const DefaultMaxDataFileSize = 128 << 20 // 128 MiB

// DefaultMaxBufferSize bounds the sum of unacknowledged record bytes.
const DefaultMaxBufferSize = 1 << 30 // 1 GiB

// MaxFileID is the largest representable data file ID (16-bit, per spec).
const MaxFileID = 0xFFFF

var (
	// ErrRecordTooLarge is returned when an encoded record exceeds
	// max_record_size.
	ErrRecordTooLarge = errors.New("wal: record exceeds max_record_size")

	// ErrBufferFull is returned by TryWrite when total_buffer_size_bytes
	// would exceed max_buffer_size, or when rolling to the next data file
	// would have to wait for the reader to vacate it.
	ErrBufferFull = errors.New("wal: buffer is full")

	// ErrCorruption wraps a detected checksum, length, or record-ID gap
	// failure. The reader drops the offending record and continues.
	ErrCorruption = errors.New("wal: corrupted record")

	// ErrIO wraps an underlying filesystem error, per the spec's Io
	// taxonomy entry. Callers should treat it as retriable.
	ErrIO = errors.New("wal: io error")

	// ErrEncoding is returned when a record's fields cannot be
	// self-consistently decoded (distinct from a checksum mismatch).
	ErrEncoding = errors.New("wal: encoding error")

	// ErrClosed is returned by Write/Flush after Close has completed.
	ErrClosed = errors.New("wal: writer closed")
)

// Metadata packs the format version and compression flag for a record.
type Metadata byte

// NewMetadata builds a Metadata byte from a format version and a
// compression.Type occupying the flag nibble.
func NewMetadata(version byte, comp compression.Type) Metadata {
	return Metadata((version & 0x0F) | (byte(comp)&0x0F)<<4)
}

// Version returns the record format version (bits 0-3).
func (m Metadata) Version() byte {
	return byte(m) & 0x0F
}

// Compression returns the payload compression algorithm (bits 4-7).
func (m Metadata) Compression() compression.Type {
	return compression.Type(byte(m) >> 4 & 0x0F)
}

// RecordHeader is the decoded fixed-size portion of a WAL frame.
type RecordHeader struct {
	Length     uint32
	CRC32C     uint32
	RecordID   uint64
	EventCount uint16
	Metadata   Metadata
}

// PayloadLength returns the number of payload bytes described by h.
func (h RecordHeader) PayloadLength() int {
	return int(h.Length) - checksummedHeaderSize
}

// EncodeRecord serializes one record: recordID, the number of events the
// payload encodes, and the (optionally precompressed) payload, compressed
// per comp if comp is not NoCompression. The returned slice is a single
// contiguous frame ready to append to a data file.
func EncodeRecord(recordID uint64, eventCount uint16, payload []byte, comp compression.Type) ([]byte, error) {
	encodedPayload := payload
	if comp != compression.NoCompression {
		compressed, err := compression.Compress(comp, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: compress payload: %v", ErrEncoding, err)
		}
		if compressed != nil {
			encodedPayload = compressed
		} else {
			comp = compression.NoCompression
		}
	}

	total := HeaderSize + len(encodedPayload)
	frame := make([]byte, total)

	length := uint32(checksummedHeaderSize + len(encodedPayload))
	encoding.EncodeFixed32(frame[0:4], length)
	encoding.EncodeFixed64(frame[8:16], recordID)
	encoding.EncodeFixed16(frame[16:18], eventCount)
	frame[18] = byte(NewMetadata(FormatVersion, comp))
	copy(frame[HeaderSize:], encodedPayload)

	crc := checksum.MaskedValue(frame[8:total])
	encoding.EncodeFixed32(frame[4:8], crc)

	return frame, nil
}

// DecodeHeader parses the fixed-size header from src, which must have at
// least HeaderSize bytes.
func DecodeHeader(src []byte) (RecordHeader, error) {
	if len(src) < HeaderSize {
		return RecordHeader{}, fmt.Errorf("%w: short header (%d bytes)", ErrEncoding, len(src))
	}
	h := RecordHeader{
		Length:     encoding.DecodeFixed32(src[0:4]),
		CRC32C:     encoding.DecodeFixed32(src[4:8]),
		RecordID:   encoding.DecodeFixed64(src[8:16]),
		EventCount: encoding.DecodeFixed16(src[16:18]),
		Metadata:   Metadata(src[18]),
	}
	if h.EventCount == 0 {
		return RecordHeader{}, fmt.Errorf("%w: event count must be >= 1", ErrEncoding)
	}
	return h, nil
}

// VerifyChecksum checks h.CRC32C against the bytes that follow the length
// field. Those bytes start with the stored CRC32C (4), which is skipped; the
// checksum covers the rest: recordID (8) + eventCount (2) + metadata (1) +
// payload.
func VerifyChecksum(h RecordHeader, afterLength []byte) bool {
	if len(afterLength) < 4 {
		return false
	}
	return checksum.MaskedValue(afterLength[4:]) == h.CRC32C
}

// DataFileName returns the filename for data file id, e.g. "buffer-data-0007.dat".
func DataFileName(id uint16) string {
	return fmt.Sprintf("buffer-data-%04d.dat", id)
}

// LedgerFileName is the fixed name of the ledger file within a buffer directory.
const LedgerFileName = "ledger.db"

// ParseDataFileID extracts the file ID from a name produced by DataFileName.
// Returns false if name does not match the expected pattern.
func ParseDataFileID(name string) (uint16, bool) {
	var id uint16
	n, err := fmt.Sscanf(name, "buffer-data-%d.dat", &id)
	if err != nil || n != 1 {
		return 0, false
	}
	return id, true
}
