package filetail

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func statIdentity(t *testing.T, path string) InodeIdentity {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	id, err := identityOf(fi)
	if err != nil {
		t.Fatalf("identityOf: %v", err)
	}
	return id
}

func TestWatcherPollEmitsCompleteLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthre"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := NewWatcher(path, statIdentity(t, path), 0, WatcherConfig{}, nil)
	lines, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("Poll() returned %d lines, want 2 (partial trailing line retained)", len(lines))
	}
	if string(lines[0].Data) != "one" || string(lines[1].Data) != "two" {
		t.Errorf("lines = %q, %q, want one, two", lines[0].Data, lines[1].Data)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString("e\nfour\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	_ = f.Close()

	lines, err = w.Poll()
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("second Poll() returned %d lines, want 2", len(lines))
	}
	if string(lines[0].Data) != "three" || string(lines[1].Data) != "four" {
		t.Errorf("lines = %q, %q, want three, four", lines[0].Data, lines[1].Data)
	}
}

func TestWatcherTruncatesOverlongLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	if err := os.WriteFile(path, append(long, '\n'), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := NewWatcher(path, statIdentity(t, path), 0, WatcherConfig{MaxLineBytes: 10}, nil)
	lines, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(lines) == 0 {
		t.Fatalf("Poll() returned no lines")
	}
	if !lines[0].Truncated {
		t.Errorf("first line should be marked Truncated")
	}
	if len(lines[0].Data) != 10 {
		t.Errorf("first line length = %d, want 10", len(lines[0].Data))
	}
}

func TestWatcherResetOnTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("0123456789\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	w := NewWatcher(path, statIdentity(t, path), 0, WatcherConfig{}, nil)
	if _, err := w.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if err := os.WriteFile(path, []byte("ab\n"), 0o644); err != nil {
		t.Fatalf("WriteFile truncate: %v", err)
	}

	kind, _, err := w.CheckRotation()
	if err != nil {
		t.Fatalf("CheckRotation: %v", err)
	}
	if kind != RotationTruncated {
		t.Fatalf("CheckRotation = %v, want RotationTruncated", kind)
	}
	if err := w.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	lines, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll after reset: %v", err)
	}
	if len(lines) != 1 || string(lines[0].Data) != "ab" {
		t.Fatalf("Poll after reset = %v, want [ab]", lines)
	}
}

func TestWatcherMarkDeadDrainsPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("partial-no-newline"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	w := NewWatcher(path, statIdentity(t, path), 0, WatcherConfig{}, nil)
	if _, err := w.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	drained := w.MarkDead()
	if len(drained) != 1 || string(drained[0].Data) != "partial-no-newline" {
		t.Fatalf("MarkDead() = %v, want the buffered partial line", drained)
	}
	if !w.Dead() {
		t.Errorf("Dead() = false after MarkDead")
	}
}

func TestWatcherDetectsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("first\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	w := NewWatcher(path, statIdentity(t, path), 0, WatcherConfig{}, nil)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.WriteFile(path, []byte("second\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	kind, newID, err := w.CheckRotation()
	if err != nil {
		t.Fatalf("CheckRotation: %v", err)
	}
	if kind != RotationRotated {
		t.Fatalf("CheckRotation = %v, want RotationRotated", kind)
	}
	if newID == w.Identity() {
		t.Errorf("new identity should differ from the original watcher's")
	}
}

func TestWatcherGracePeriod(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	w := NewWatcher(path, statIdentity(t, path), 0, WatcherConfig{DeadGracePeriod: 10 * time.Millisecond}, nil)

	now := time.Now()
	w.MarkNotFindable(now)
	if w.GracePeriodExpired(now) {
		t.Errorf("grace period should not have expired immediately")
	}
	if !w.GracePeriodExpired(now.Add(20 * time.Millisecond)) {
		t.Errorf("grace period should have expired after 20ms with a 10ms grace period")
	}
}
