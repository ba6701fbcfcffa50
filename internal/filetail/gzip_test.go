package filetail

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestOpenDecompressedPlainFile(t *testing.T) {
	r, isGzip, err := openDecompressed(bytes.NewReader([]byte("hello\n")))
	if err != nil {
		t.Fatalf("openDecompressed: %v", err)
	}
	if isGzip {
		t.Fatalf("isGzip = true for a plain reader")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("data = %q, want hello\\n", data)
	}
}

func TestOpenDecompressedGzipFile(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("compressed line\n")); err != nil {
		t.Fatalf("gzip Write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}

	r, isGzip, err := openDecompressed(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("openDecompressed: %v", err)
	}
	if !isGzip {
		t.Fatalf("isGzip = false for a gzip stream")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "compressed line\n" {
		t.Errorf("data = %q, want compressed line\\n", data)
	}
}
