package buffer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/obsrouter/routercore/internal/event"
	"github.com/obsrouter/routercore/internal/vfs"
	"github.com/obsrouter/routercore/internal/wal"
)

func TestDiskStageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.Default()
	s, err := NewDiskStage(fs, "disk", 0, DiskOptions{Dir: dir, WhenFull: Block})
	if err != nil {
		t.Fatalf("NewDiskStage: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 5
	for i := 0; i < n; i++ {
		ev := event.NewLogEvent(time.Now())
		_ = ev.Set("message", event.StringValue(fmt.Sprintf("msg-%d", i)))
		if res, err := s.Offer(ctx, ev); err != nil || res == Dropped {
			t.Fatalf("Offer(%d) = (%v, %v)", i, res, err)
		}
	}

	for i := 0; i < n; i++ {
		item, err := s.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive(%d): %v", i, err)
		}
		v, ok := item.Event.Get("message")
		if !ok {
			t.Fatalf("Receive(%d): message field missing", i)
		}
		b, _ := v.Bytes()
		if string(b) != fmt.Sprintf("msg-%d", i) {
			t.Errorf("Receive(%d) message = %q, want msg-%d", i, b, i)
		}
		if err := s.Ack(item); err != nil {
			t.Fatalf("Ack(%d): %v", i, err)
		}
	}
}

func TestDiskStageReceiveBlocksUntilOffer(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.Default()
	s, err := NewDiskStage(fs, "disk", 0, DiskOptions{Dir: dir, WhenFull: Block})
	if err != nil {
		t.Fatalf("NewDiskStage: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type result struct {
		item Item
		err  error
	}
	done := make(chan result, 1)
	go func() {
		item, err := s.Receive(ctx)
		done <- result{item, err}
	}()

	time.Sleep(30 * time.Millisecond)
	ev := event.NewLogEvent(time.Now())
	_ = ev.Set("message", event.StringValue("late"))
	if _, err := s.Offer(ctx, ev); err != nil {
		t.Fatalf("Offer: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Receive: %v", r.err)
		}
		v, _ := r.item.Event.Get("message")
		b, _ := v.Bytes()
		if string(b) != "late" {
			t.Errorf("Receive() message = %q, want late", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after a late Offer")
	}
}

// TestDiskStageDropsNewestWhenBufferFull covers a DropNewest (or Overflow)
// disk stage's non-blocking path once the on-disk buffer is full: the
// offer must be rejected immediately, not hang waiting for space, and the
// already-accepted record must still be the one delivered downstream.
func TestDiskStageDropsNewestWhenBufferFull(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.Default()

	first := event.NewLogEvent(time.Now())
	_ = first.Set("message", event.StringValue("first"))
	encodedFirst, err := event.Encode(first)
	if err != nil {
		t.Fatalf("event.Encode: %v", err)
	}

	s, err := NewDiskStage(fs, "disk", 0, DiskOptions{
		Dir:           dir,
		WhenFull:      DropNewest,
		MaxBufferSize: uint64(wal.HeaderSize + len(encodedFirst)),
	})
	if err != nil {
		t.Fatalf("NewDiskStage: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := s.Offer(ctx, first)
	if err != nil || res == Dropped {
		t.Fatalf("Offer(first) = (%v, %v), want it accepted", res, err)
	}

	second := event.NewLogEvent(time.Now())
	_ = second.Set("message", event.StringValue("second"))

	done := make(chan struct {
		res OfferResult
		err error
	}, 1)
	go func() {
		res, err := s.Offer(ctx, second)
		done <- struct {
			res OfferResult
			err error
		}{res, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Offer(second): %v", r.err)
		}
		if r.res != Dropped {
			t.Fatalf("Offer(second) = %v, want Dropped once the buffer is full", r.res)
		}
	case <-time.After(time.Second):
		t.Fatal("Offer(second) blocked instead of dropping under DropNewest")
	}

	item, err := s.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	v, _ := item.Event.Get("message")
	b, _ := v.Bytes()
	if string(b) != "first" {
		t.Fatalf("Receive() message = %q, want %q (the dropped record must not appear)", b, "first")
	}
}
