package checksum

import (
	"bytes"
	"strings"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := Fingerprint(data)
	b := Fingerprint(data)
	if a != b {
		t.Fatalf("Fingerprint not deterministic: %x != %x", a, b)
	}
}

func TestFingerprintDiffersOnContent(t *testing.T) {
	a := Fingerprint([]byte("alpha"))
	b := Fingerprint([]byte("beta"))
	if a == b {
		t.Fatalf("distinct inputs produced the same fingerprint: %x", a)
	}
}

func TestFingerprintTruncatesToLeadBytes(t *testing.T) {
	head := bytes.Repeat([]byte("a"), FingerprintBytes)
	short := Fingerprint(head)
	long := Fingerprint(append(bytes.Repeat([]byte("a"), FingerprintBytes), bytes.Repeat([]byte("b"), 4096)...))
	if short != long {
		t.Fatalf("fingerprint should only consider the first %d bytes", FingerprintBytes)
	}
}

func TestFingerprintEmpty(t *testing.T) {
	// must not panic, and must be stable
	a := Fingerprint(nil)
	b := Fingerprint([]byte{})
	if a != b {
		t.Fatalf("Fingerprint(nil) != Fingerprint(empty slice)")
	}
}

func TestFingerprintReaderMatchesBytes(t *testing.T) {
	content := strings.Repeat("x", FingerprintBytes*4)
	want := Fingerprint([]byte(content))

	got, err := FingerprintReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("FingerprintReader: %v", err)
	}
	if got != want {
		t.Fatalf("FingerprintReader = %x, want %x", got, want)
	}
}

func TestFingerprintReaderShortFile(t *testing.T) {
	content := "short"
	want := Fingerprint([]byte(content))

	got, err := FingerprintReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("FingerprintReader: %v", err)
	}
	if got != want {
		t.Fatalf("FingerprintReader(short) = %x, want %x", got, want)
	}
}
