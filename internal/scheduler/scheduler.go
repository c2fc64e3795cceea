// Package scheduler implements the Outreach Scheduler (spec.md §4.5): a
// daytime-windowed periodic batch that picks one eligible prospect per idle
// executor and spaces the greeting sends across the cycle window on a
// truncated normal schedule.
//
// Grounded on the teacher's heartbeat.go timezone-aware window gating and
// loop shape, with the batch/offset mechanics from
// original_source/services/greeter.py.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/local/outreach/internal/config"
	"github.com/local/outreach/internal/conversation"
	"github.com/local/outreach/internal/pool"
	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telemetry"
)

const (
	idleSleep      = 5 * time.Second
	nightSleep     = 5 * time.Minute
	greetBatchSize = 0 // unlimited: one prospect per idle executor
)

// Scheduler drives greeting cycles.
type Scheduler struct {
	users     *store.UserRepo
	pool      *pool.Pool
	assistant conversation.Assistant
	cfg       *config.Store
	log       *telemetry.Logger
}

func New(users *store.UserRepo, p *pool.Pool, assistant conversation.Assistant, cfg *config.Store, log *telemetry.Logger) *Scheduler {
	return &Scheduler{users: users, pool: p, assistant: assistant, cfg: cfg, log: log}
}

// Run loops greeting cycles until ctx is cancelled: wait for the daytime
// window, pick a batch, schedule offsets, send in offset order, then sleep
// out the remainder of the window so cycles never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		cfg, err := s.cfg.Get()
		if err != nil {
			s.errorf("greeter: config", err)
			cfg = config.Defaults()
		}

		if !cfg.InAwakeWindow(time.Now()) {
			if err := sleepCtx(ctx, nightSleep); err != nil {
				return err
			}
			continue
		}

		batch, err := s.users.PopUsersToGreet(ctx, greetBatchSize)
		if err != nil {
			s.errorf("greeter: pop_users_to_greet", err)
			if err := sleepCtx(ctx, idleSleep); err != nil {
				return err
			}
			continue
		}
		if len(batch) == 0 {
			if err := sleepCtx(ctx, idleSleep); err != nil {
				return err
			}
			continue
		}

		window := float64(cfg.GreetPeriod)
		offsets := buildSchedule(len(batch), window)
		start := time.Now()

		for i, candidate := range batch {
			target := start.Add(time.Duration(offsets[i] * float64(time.Second)))
			if wait := time.Until(target); wait > 0 {
				if err := sleepCtx(ctx, wait); err != nil {
					return err
				}
			}
			s.greetOne(ctx, candidate, cfg)
		}

		tail := time.Duration(window*float64(time.Second)) - time.Since(start)
		if tail > 0 {
			if err := sleepCtx(ctx, tail); err != nil {
				return err
			}
		}
	}
}

// greetOne performs one outreach send (spec.md §4.5 step 3): skip prospects
// that turned banned or problem since the batch was drawn, connect the
// executor's client, resolve the peer, emit the greeting through the
// assistant, then record the outcome.
func (s *Scheduler) greetOne(ctx context.Context, c store.GreetCandidate, cfg config.Values) {
	user, err := s.users.GetUser(ctx, c.UserID)
	if err != nil {
		s.errorf("greeter: get_user", err)
		return
	}
	if user.Banned || user.Problem {
		return
	}

	client, err := s.pool.EnsureClient(ctx, c.ExecutorID)
	if err != nil {
		s.errorf("greeter: ensure_client", err)
		return
	}
	if _, err := s.pool.ConnectUser(ctx, client, c.UserID); err != nil {
		s.errorf("greeter: connect_user", err)
		_ = s.users.RotateUserDown(ctx, c.UserID)
		return
	}

	// Fresh prospects take the raw first-contact path; re-greets (the
	// conversation thread already exists) take it only when SECOND_GREET is
	// set. Capture before Respond creates the thread.
	first := user.ConversationID == "" || cfg.SecondGreet

	prompt := fmt.Sprintf("CLIENT_INFO: %s\n\nSTART_MESSAGE: %s", user.Info, generateIntroMessage())
	reply, err := s.assistant.Respond(ctx, c.UserID, prompt)
	if err != nil {
		s.errorf("greeter: assistant", err)
		_ = s.users.RotateUserDown(ctx, c.UserID)
		return
	}
	if !reply.Send || reply.Answer == "" {
		_ = s.users.RotateUserDown(ctx, c.UserID)
		return
	}

	ok, err := s.pool.SendText(ctx, c.UserID, reply.Answer, pool.SendOptions{
		First:              first,
		ExplicitClient:     client,
		ExplicitExecutorID: c.ExecutorID,
	})
	if err != nil || !ok {
		s.errorf("greeter: send", err)
		_ = s.users.RotateUserDown(ctx, c.UserID)
		return
	}

	_ = s.users.UpdateUserParam(ctx, c.UserID, "contact", true)
	_ = s.users.UserTimestamp(ctx, c.UserID)
	if s.log != nil {
		s.log.Outbound(c.ExecutorID, c.UserID, reply.Answer)
	}
}

func (s *Scheduler) errorf(where string, err error) {
	if s.log != nil && err != nil {
		s.log.Error(where, err)
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
