package pool

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestPool() *Pool {
	return New(nil, nil, nil, nil)
}

func TestSleepExecutorMonotonic(t *testing.T) {
	p := newTestPool()
	const executorID = 1

	p.sleepExecutor(executorID, 50*time.Millisecond)
	st := p.state(executorID)
	st.mu.Lock()
	first := st.sleepUntil
	st.mu.Unlock()

	// A shorter sleep requested afterward must not shorten the deadline.
	p.sleepExecutor(executorID, 10*time.Millisecond)
	st.mu.Lock()
	second := st.sleepUntil
	st.mu.Unlock()

	if second.Before(first) {
		t.Fatalf("sleep deadline moved backward: %v -> %v", first, second)
	}

	if !p.IsSleeping(executorID) {
		t.Fatalf("expected executor to be sleeping")
	}

	time.Sleep(60 * time.Millisecond)
	if p.IsSleeping(executorID) {
		t.Fatalf("expected executor to be awake after deadline passed")
	}
}

func TestEnqueueDrainsAfterSleep(t *testing.T) {
	p := newTestPool()
	const executorID = 2

	var mu sync.Mutex
	var ran []int

	p.sleepExecutor(executorID, 30*time.Millisecond)
	for i := 0; i < 3; i++ {
		i := i
		p.enqueue(executorID, func(ctx context.Context) {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		})
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(ran)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("jobs did not drain in time, got %d/3", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range ran {
		if v != i {
			t.Fatalf("jobs ran out of FIFO order: %v", ran)
		}
	}
}

func TestBackoffGrowsAndResets(t *testing.T) {
	p := newTestPool()
	const executorID = 3

	first := p.nextBackoff(executorID)
	second := p.nextBackoff(executorID)
	if second <= first {
		t.Fatalf("expected backoff to grow: %v -> %v", first, second)
	}

	p.resetBackoff(executorID)
	third := p.nextBackoff(executorID)
	if third > first {
		t.Fatalf("expected backoff to reset near initial interval, got %v (first was %v)", third, first)
	}
}

func TestShutdownStopsDrainers(t *testing.T) {
	p := newTestPool()
	const executorID = 4

	p.sleepExecutor(executorID, time.Hour)
	p.Shutdown()

	deadline := time.After(2 * time.Second)
	for {
		st := p.state(executorID)
		st.mu.Lock()
		alive := st.drainerAlive
		st.mu.Unlock()
		if !alive {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("drainer did not stop after Shutdown")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
