// Package heartbeat runs the per-executor presence monitor supplemented
// from original_source/services/monitoring.py (shape from the teacher's
// heartbeat.go): each executor periodically writes a short presence message
// to a shared group, and the outcome maps onto the executor status values
// no other component sets — limited, forbidden, error.
package heartbeat

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/pool"
	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telemetry"
)

var presenceMessages = []string{
	"На связи ✅",
	"Жив-здоров 👋",
	"Пульс есть 💓",
	"Все ок, работаю.",
	"Проверка присутствия.",
}

// Status cooldowns after a failed presence send.
const (
	limitedCooldown   = time.Hour
	forbiddenCooldown = 30 * time.Minute
	errorCooldown     = time.Minute
)

// Interval bounds between presence sends per executor.
const (
	minInterval = 20 * time.Minute
	maxInterval = time.Hour
)

// Monitor supervises one presence worker per executor.
type Monitor struct {
	executors *store.ExecutorRepo
	pool      *pool.Pool
	log       *telemetry.Logger
	group     int64 // chat every executor reports into

	// limiter caps the fleet's combined presence traffic regardless of how
	// many executors are registered.
	limiter *rate.Limiter
}

// New constructs a Monitor. group is the shared chat id; the supervisor
// skips construction entirely when none is configured.
func New(executors *store.ExecutorRepo, p *pool.Pool, group int64, log *telemetry.Logger) *Monitor {
	return &Monitor{
		executors: executors,
		pool:      p,
		group:     group,
		log:       log,
		limiter:   rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Run starts one worker per known executor and blocks until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ids, err := m.executors.GetIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.worker(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

// worker is one executor's presence loop: send, react to the outcome, wait
// a randomized interval.
func (m *Monitor) worker(ctx context.Context, executorID int64) {
	// Stagger startup so a fleet doesn't report in lockstep.
	if err := sleepCtx(ctx, time.Duration(rand.Int63n(int64(3*time.Second)))); err != nil {
		return
	}

	client, err := m.pool.EnsureClient(ctx, executorID)
	if err != nil {
		m.errorf("heartbeat: ensure_client", err)
		return
	}
	peer := messaging.Peer{UserID: m.group}

	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		cooldown := m.beat(ctx, client, executorID, peer)
		if cooldown == 0 {
			span := int64(maxInterval - minInterval)
			cooldown = minInterval + time.Duration(rand.Int63n(span))
		}
		if err := sleepCtx(ctx, cooldown); err != nil {
			return
		}
	}
}

// beat sends one presence message and translates the outcome into executor
// status. Returns the cooldown to apply, or 0 for the normal interval.
func (m *Monitor) beat(ctx context.Context, client messaging.Sender, executorID int64, peer messaging.Peer) time.Duration {
	_ = client.SendTyping(ctx, peer)

	text := presenceMessages[rand.Intn(len(presenceMessages))]
	_, err := client.SendText(ctx, peer, text, 0, false)

	cls := messaging.Classify(err)
	switch cls.Kind {
	case messaging.KindOK:
		m.setStatus(ctx, executorID, store.StatusActive)
		_ = m.executors.ExecutorTimestamp(ctx, executorID)
		return 0

	case messaging.KindThrottled:
		return cls.Wait

	case messaging.KindPeerFlooded:
		m.setStatus(ctx, executorID, store.StatusLimited)
		return limitedCooldown

	case messaging.KindRecipientBlocked:
		m.setStatus(ctx, executorID, store.StatusForbidden)
		return forbiddenCooldown

	case messaging.KindAuthFailed:
		status := store.StatusDisconnected
		if cls.Proxy {
			status = store.StatusProxyOrAuthFailed
		}
		m.setStatus(ctx, executorID, status)
		return forbiddenCooldown

	default:
		m.setStatus(ctx, executorID, store.StatusError)
		return errorCooldown
	}
}

func (m *Monitor) setStatus(ctx context.Context, executorID int64, status store.ExecutorStatus) {
	if err := m.executors.UpdateExecutorParam(ctx, executorID, "status", string(status)); err != nil {
		m.errorf("heartbeat: set status", err)
		return
	}
	if m.log != nil {
		m.log.ExecutorState(executorID, string(status))
	}
}

func (m *Monitor) errorf(where string, err error) {
	if m.log != nil && err != nil {
		m.log.Error(where, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
