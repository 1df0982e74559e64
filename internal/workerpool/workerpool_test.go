package workerpool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsJobsAcrossWorkers(t *testing.T) {
	p := New(4, 16)
	defer p.Stop()

	var count atomic.Int64
	const jobs = 100
	done := make(chan struct{}, jobs)
	for i := 0; i < jobs; i++ {
		p.Submit(func() {
			count.Add(1)
			done <- struct{}{}
		})
	}

	for i := 0; i < jobs; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for jobs to complete")
		}
	}

	if got := count.Load(); got != jobs {
		t.Fatalf("expected %d jobs to run, got %d", jobs, got)
	}
}

func TestStopWaitsForInFlightJobsAndIsIdempotent(t *testing.T) {
	p := New(2, 4)

	var ran atomic.Bool
	finished := make(chan struct{})
	p.Submit(func() {
		ran.Store(true)
		close(finished)
	})

	<-finished
	p.Stop()
	p.Stop()

	if !ran.Load() {
		t.Fatal("expected job to have run before Stop returned")
	}
}

func TestTrySubmitReportsFullQueue(t *testing.T) {
	p := New(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-block
	})
	<-started

	// The single worker is now blocked in the job above; fill the queue.
	if !p.TrySubmit(func() {}) {
		t.Fatal("expected first queued submit to succeed")
	}

	ok := p.TrySubmit(func() {})
	close(block)
	if ok {
		t.Fatal("expected TrySubmit to report a full queue")
	}
}
