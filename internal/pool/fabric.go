package pool

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// execState is one executor's Rate-Limit & Defer Fabric state (spec.md
// §4.3): a monotonically-advancing sleep deadline, a FIFO of deferred sends,
// and the exponential back-off used to grow sleep duration across
// consecutive peer-flood errors. Grounded on the teacher's sdk/agent/bus.go
// single-consumer drain loop, generalized from one shared bus to one
// instance per executor.
type execState struct {
	mu           sync.Mutex
	sleepUntil   time.Time
	queue        []func(context.Context)
	drainerAlive bool
	backoff      *backoff.ExponentialBackOff
}

func newExecState() *execState {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0 // sleep exactly the current interval
	b.MaxInterval = 24 * time.Hour
	b.MaxElapsedTime = 0 // never gives up
	b.Reset()
	return &execState{backoff: b}
}

func (p *Pool) state(executorID int64) *execState {
	p.statesMu.Lock()
	defer p.statesMu.Unlock()
	st, ok := p.states[executorID]
	if !ok {
		st = newExecState()
		p.states[executorID] = st
	}
	return st
}

// IsSleeping reports whether executorID's sleep deadline is still in the
// future (spec.md §4.3).
func (p *Pool) IsSleeping(executorID int64) bool {
	st := p.state(executorID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sleepUntil.After(time.Now())
}

// sleepExecutor imposes (or extends) a sleep deadline. The deadline only
// ever moves forward: a shorter sleep requested while a longer one is
// already in effect is a no-op (spec.md §8 invariant — concurrent
// sleep_until calls never shorten the deadline).
func (p *Pool) sleepExecutor(executorID int64, d time.Duration) {
	st := p.state(executorID)
	st.mu.Lock()
	candidate := time.Now().Add(d)
	if candidate.After(st.sleepUntil) {
		st.sleepUntil = candidate
	}
	needDrainer := !st.drainerAlive
	if needDrainer {
		st.drainerAlive = true
	}
	st.mu.Unlock()

	if needDrainer {
		go p.runDrainer(executorID, st)
	}
}

// nextBackoff grows and returns the executor's current back-off interval,
// used for PeerFloodError (spec.md §7) where the upstream service gives no
// explicit wait duration.
func (p *Pool) nextBackoff(executorID int64) time.Duration {
	st := p.state(executorID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.backoff.NextBackOff()
}

// resetBackoff restores the default interval after a successful send,
// so an isolated flood doesn't permanently slow the executor down.
func (p *Pool) resetBackoff(executorID int64) {
	st := p.state(executorID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.backoff.Reset()
}

// Defer enqueues job onto executorID's defer queue, starting a drainer if
// none is running. The Conversation Runtime uses this to hand off
// handle_user_buffer when an inbound message arrives on a sleeping executor
// (spec.md §4.4 step 6).
func (p *Pool) Defer(executorID int64, job func(context.Context)) {
	p.enqueue(executorID, job)
}

// enqueue appends a deferred job to the executor's FIFO and, if no drainer
// is running for it, starts one (spec.md §4.3 defer_queue/drainer_task).
func (p *Pool) enqueue(executorID int64, job func(context.Context)) {
	st := p.state(executorID)
	st.mu.Lock()
	st.queue = append(st.queue, job)
	needDrainer := !st.drainerAlive
	if needDrainer {
		st.drainerAlive = true
	}
	st.mu.Unlock()

	if needDrainer {
		go p.runDrainer(executorID, st)
	}
}

// runDrainer is the single consumer of one executor's defer_queue: it waits
// out the current sleep deadline, then executes queued jobs one at a time as
// long as the executor isn't sleeping again (a job itself may re-impose a
// sleep) and the pool hasn't been asked to stop. It exits — clearing
// drainerAlive — once the queue is empty and the executor is awake, and is
// restarted lazily by the next enqueue/sleepExecutor call (spec.md §4.3).
func (p *Pool) runDrainer(executorID int64, st *execState) {
	ctx := context.Background()
	for {
		st.mu.Lock()
		until := st.sleepUntil
		st.mu.Unlock()

		if wait := time.Until(until); wait > 0 {
			select {
			case <-time.After(wait):
			case <-p.stopCh:
				st.mu.Lock()
				st.drainerAlive = false
				st.mu.Unlock()
				return
			}
		}

		for {
			select {
			case <-p.stopCh:
				st.mu.Lock()
				st.drainerAlive = false
				st.mu.Unlock()
				return
			default:
			}

			st.mu.Lock()
			if st.sleepUntil.After(time.Now()) {
				st.mu.Unlock()
				break // a job re-imposed sleep; go back to waiting it out
			}
			if len(st.queue) == 0 {
				st.drainerAlive = false
				st.mu.Unlock()
				return
			}
			job := st.queue[0]
			st.queue = st.queue[1:]
			st.mu.Unlock()

			job(ctx)
		}
	}
}
