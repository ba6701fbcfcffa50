package checksum

import (
	"io"

	"github.com/zeebo/xxh3"
)

// FingerprintBytes is the number of leading bytes of a file read for
// fingerprinting. Matching on a content prefix, rather than the full file,
// keeps the checkpoint's fingerprint computation cheap for large files while
// still distinguishing a genuinely new file from a path an inode was reused
// for after the file it used to name was rotated or removed.
const FingerprintBytes = 256

// Fingerprint computes a content fingerprint over up to FingerprintBytes
// leading bytes of data. The file-tailer checkpoint stores this alongside a
// file's (device, inode) pair so that a restart can tell a reused inode
// apart from the file it originally tracked.
func Fingerprint(data []byte) uint64 {
	if len(data) > FingerprintBytes {
		data = data[:FingerprintBytes]
	}
	return xxh3.Hash(data)
}

// FingerprintReader computes a Fingerprint over the leading bytes of r
// without requiring the caller to buffer the whole file. r is read at most
// FingerprintBytes; a short read (r shorter than FingerprintBytes) is not an
// error, it just fingerprints whatever was available.
func FingerprintReader(r io.Reader) (uint64, error) {
	buf := make([]byte, FingerprintBytes)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, err
	}
	return Fingerprint(buf[:n]), nil
}
