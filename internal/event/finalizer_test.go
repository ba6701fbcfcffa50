package event

import (
	"sync"
	"testing"
	"time"
)

func TestBatchNotifierAllDelivered(t *testing.T) {
	n := NewBatchNotifier()
	f1 := n.NewFinalizer()
	f2 := n.NewFinalizer()

	go f1.MarkDelivered()
	go f2.MarkDelivered()

	if got := n.Wait(); got != Delivered {
		t.Errorf("Wait() = %v, want Delivered", got)
	}
}

func TestBatchNotifierWorstWins(t *testing.T) {
	n := NewBatchNotifier()
	f1 := n.NewFinalizer()
	f2 := n.NewFinalizer()
	f3 := n.NewFinalizer()

	f1.MarkDelivered()
	f2.MarkErrored()
	f3.MarkRejected()

	if got := n.Wait(); got != Rejected {
		t.Errorf("Wait() = %v, want Rejected (worst of Delivered/Errored/Rejected)", got)
	}
}

func TestBatchNotifierNoFinalizersReturnsDelivered(t *testing.T) {
	n := NewBatchNotifier()
	if got := n.Wait(); got != Delivered {
		t.Errorf("Wait() with zero finalizers = %v, want Delivered", got)
	}
}

func TestFinalizerDoubleReportIgnored(t *testing.T) {
	n := NewBatchNotifier()
	f := n.NewFinalizer()

	f.MarkDelivered()
	f.MarkRejected() // should be a no-op; first report wins

	if got := n.Wait(); got != Delivered {
		t.Errorf("Wait() = %v, want Delivered (second report must be ignored)", got)
	}
}

func TestBatchNotifierConcurrentReports(t *testing.T) {
	n := NewBatchNotifier()
	const count = 100
	finalizers := make([]*Finalizer, count)
	for i := range finalizers {
		finalizers[i] = n.NewFinalizer()
	}

	var wg sync.WaitGroup
	for _, f := range finalizers {
		wg.Add(1)
		go func(f *Finalizer) {
			defer wg.Done()
			f.MarkDelivered()
		}(f)
	}
	wg.Wait()

	done := make(chan Status, 1)
	go func() { done <- n.Wait() }()

	select {
	case got := <-done:
		if got != Delivered {
			t.Errorf("Wait() = %v, want Delivered", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after all finalizers reported")
	}
}
