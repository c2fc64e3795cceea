// Package pool implements the Client Pool and the Rate-Limit & Defer Fabric
// (spec.md §4.2, §4.3) as a single package — per spec.md §3's ownership
// note, the fabric is the pool's internal state machine, not a separate
// component with its own storage.
//
// Grounded on the teacher's users.go UserRegistry (lazy per-key cache with
// double-checked locking under a per-key mutex) and sdk/agent/bus.go's
// single-consumer drain-loop shape, generalized from a per-user Postgres
// pool to a per-executor messaging.Sender cache with sleep/backoff state.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telemetry"
)

// Handler is re-applied to every future client and to every currently
// cached client (spec.md §4.2 add_handler). It receives the executor that
// owns the connection the message arrived on.
type Handler func(ctx context.Context, executorID int64, update messaging.Update)

// Pool owns the lifecycle of messaging-client handles and the per-executor
// sleep/back-off/defer state (spec.md §4.2, §4.3).
type Pool struct {
	executors *store.ExecutorRepo
	users     *store.UserRepo
	factory   messaging.Factory
	log       *telemetry.Logger

	clientsMu sync.Mutex
	clients   map[int64]messaging.Sender
	connectMu map[int64]*sync.Mutex // per-executor connect lock

	handlersMu sync.Mutex
	handlers   []Handler

	statesMu sync.Mutex
	states   map[int64]*execState

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Pool. factory builds a messaging.Sender for one
// executor's credentials/session/proxy — see messaging.Factory.
func New(executors *store.ExecutorRepo, users *store.UserRepo, factory messaging.Factory, log *telemetry.Logger) *Pool {
	return &Pool{
		executors: executors,
		users:     users,
		factory:   factory,
		log:       log,
		clients:   make(map[int64]messaging.Sender),
		connectMu: make(map[int64]*sync.Mutex),
		states:    make(map[int64]*execState),
		stopCh:    make(chan struct{}),
	}
}

// AddHandler appends to the handler registry; it is re-applied to every
// future client and to every currently cached client (spec.md §4.2).
func (p *Pool) AddHandler(h Handler) {
	p.handlersMu.Lock()
	p.handlers = append(p.handlers, h)
	p.handlersMu.Unlock()
}

func (p *Pool) dispatch(ctx context.Context, executorID int64, update messaging.Update) {
	p.handlersMu.Lock()
	handlers := append([]Handler(nil), p.handlers...)
	p.handlersMu.Unlock()
	for _, h := range handlers {
		h(ctx, executorID, update)
	}
}

func (p *Pool) connectLock(executorID int64) *sync.Mutex {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	m, ok := p.connectMu[executorID]
	if !ok {
		m = &sync.Mutex{}
		p.connectMu[executorID] = m
	}
	return m
}

// EnsureClient returns a cached, connected client, constructing and
// connecting one under the per-executor lock if absent (spec.md §4.2
// ensure_client). Double-checked under the lock.
func (p *Pool) EnsureClient(ctx context.Context, executorID int64) (messaging.Sender, error) {
	p.clientsMu.Lock()
	if c, ok := p.clients[executorID]; ok {
		p.clientsMu.Unlock()
		return c, nil
	}
	p.clientsMu.Unlock()

	lock := p.connectLock(executorID)
	lock.Lock()
	defer lock.Unlock()

	p.clientsMu.Lock()
	if c, ok := p.clients[executorID]; ok {
		p.clientsMu.Unlock()
		return c, nil
	}
	p.clientsMu.Unlock()

	exec, err := p.executors.GetExecutor(ctx, executorID)
	if err != nil {
		return nil, fmt.Errorf("ensure_client: %w", err)
	}

	var proxy *messaging.Proxy
	if exec.Proxy != nil {
		proxy = &messaging.Proxy{
			Scheme: exec.Proxy.Scheme, Host: exec.Proxy.Host, Port: exec.Proxy.Port,
			User: exec.Proxy.User, Password: exec.Proxy.Password,
		}
	}
	client := p.factory(executorID, exec.APICredentials, exec.SessionBlob, proxy)

	if err := client.Connect(ctx); err != nil {
		_ = p.executors.UpdateExecutorParam(ctx, executorID, "status", string(store.StatusDisconnected))
		if p.log != nil {
			p.log.ExecutorState(executorID, string(store.StatusDisconnected))
		}
		return nil, fmt.Errorf("ensure_client: connect: %w", err)
	}

	if listener, ok := client.(messaging.Listener); ok {
		listenCtx, cancel := context.WithCancel(ctx)
		go func() {
			defer cancel()
			_ = listener.Listen(listenCtx, func(u messaging.Update) {
				p.dispatch(listenCtx, executorID, u)
			})
		}()
	}

	_ = p.executors.UpdateExecutorParam(ctx, executorID, "status", string(store.StatusActive))
	if p.log != nil {
		p.log.ExecutorState(executorID, string(store.StatusActive))
	}

	p.clientsMu.Lock()
	p.clients[executorID] = client
	p.clientsMu.Unlock()

	return client, nil
}

// Activate eagerly connects every executor, then blocks until ctx is
// cancelled. The supervisor owns signal handling (signal.NotifyContext);
// Activate only honors the cancellation it's given (spec.md §4.2 activate).
func (p *Pool) Activate(ctx context.Context) error {
	ids, err := p.executors.GetIDs(ctx)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	for _, id := range ids {
		if _, err := p.EnsureClient(ctx, id); err != nil && p.log != nil {
			p.log.Error("activate", err)
		}
	}
	<-ctx.Done()
	return nil
}

// Shutdown sets the stop flag, wakes every sleeping executor so drainers
// exit promptly, and stops every live client (spec.md §4.2 shutdown). The
// caller disposes the Persistence handle afterward.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.statesMu.Lock()
	for _, st := range p.states {
		st.mu.Lock()
		st.sleepUntil = time.Time{}
		st.mu.Unlock()
	}
	p.statesMu.Unlock()

	p.clientsMu.Lock()
	clients := make([]messaging.Sender, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clientsMu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}
