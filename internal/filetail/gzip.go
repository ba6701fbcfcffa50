package filetail

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/gzip"
)

// gzipMagic is the two leading bytes of every gzip stream (RFC 1952 §2.3).
var gzipMagic = []byte{0x1f, 0x8b}

// sniffGzip peeks at the leading bytes of r without consuming them from the
// caller's perspective: it returns a *bufio.Reader that still contains the
// peeked bytes, plus whether those bytes matched the gzip magic.
func sniffGzip(r io.Reader) (*bufio.Reader, bool, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	peek, err := br.Peek(len(gzipMagic))
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return br, false, nil
		}
		return br, false, err
	}
	return br, peek[0] == gzipMagic[0] && peek[1] == gzipMagic[1], nil
}

// openDecompressed wraps r in a streaming gzip reader when its leading
// bytes match the gzip magic, per spec.md §4.3 ("files whose first bytes
// match the gzip magic are read through a streaming decompressor").
// Seeking into a gzip stream isn't supported by gzip.Reader, so callers
// that need mid-file resume must either start these files from the
// beginning or skip them, per the same section.
func openDecompressed(r io.Reader) (io.Reader, bool, error) {
	br, isGzip, err := sniffGzip(r)
	if err != nil {
		return nil, false, err
	}
	if !isGzip {
		return br, false, nil
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, false, err
	}
	return gz, true, nil
}
