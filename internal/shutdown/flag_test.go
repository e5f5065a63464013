package shutdown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFlag_HaltOnce(t *testing.T) {
	f := NewFlag()
	obs := f.Observer()

	if obs.Halted() {
		t.Fatal("New flag should be running")
	}
	select {
	case <-obs.Done():
		t.Fatal("Done should block before Halt")
	default:
	}

	if !f.Halt() {
		t.Error("First Halt should report the flip")
	}
	if f.Halt() {
		t.Error("Second Halt should be a no-op")
	}
	if !obs.Halted() {
		t.Error("Observer should see the halt")
	}
	select {
	case <-obs.Done():
	default:
		t.Error("Done should be closed after Halt")
	}
}

func TestFlag_ConcurrentHalt(t *testing.T) {
	f := NewFlag()
	var flips atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Halt() {
				flips.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := flips.Load(); got != 1 {
		t.Errorf("Expected exactly one flip, got %d", got)
	}
}

func TestFlag_ObserversWakeUp(t *testing.T) {
	f := NewFlag()
	const watchers = 5

	var wg sync.WaitGroup
	for i := 0; i < watchers; i++ {
		obs := f.Observer()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-obs.Done()
		}()
	}

	f.Halt()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Observers did not wake up after Halt")
	}
}

func TestObserver_Valid(t *testing.T) {
	if (Observer{}).Valid() {
		t.Error("zero Observer should not be valid")
	}
	if !NewFlag().Observer().Valid() {
		t.Error("Observer from a flag should be valid")
	}
}
