package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/obsrouter/routercore/internal/event"
)

type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: make(map[string]int)}
}

func (s *recordingSink) ReportUsage(stageName string, u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[stageName]++
}

func (s *recordingSink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func TestCountersTrackReceivedAndSent(t *testing.T) {
	s := NewMemoryStage("mem", 0, MemoryOptions{MaxEvents: 4})
	ctx := context.Background()

	ev := event.NewLogEvent(time.Now())
	_ = ev.Set("message", event.StringValue("hello"))
	if _, err := s.Offer(ctx, ev); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if _, err := s.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	u := s.Usage()
	if u.ReceivedEvents != 1 {
		t.Errorf("ReceivedEvents = %d, want 1", u.ReceivedEvents)
	}
	if u.SentEvents != 1 {
		t.Errorf("SentEvents = %d, want 1", u.SentEvents)
	}
}

// TestReporterStopIsClean starts a reporter and checks that Stop returns
// promptly. ReportInterval cannot be shortened from a test, so whether the
// sink is called on each tick is not checked here.
func TestReporterStopIsClean(t *testing.T) {
	s := NewMemoryStage("mem", 0, MemoryOptions{MaxEvents: 4})
	sink := newRecordingSink()
	r := NewReporter(context.Background(), sink, []Stage{s})

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reporter.Stop did not return")
	}
}
