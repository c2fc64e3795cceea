package conversation

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	typingInterval = 5 * time.Second
	cosmeticCap    = 10 * time.Second
)

// handleUserBuffer implements spec.md §4.4's handle_user_buffer exactly.
func (r *Runtime) handleUserBuffer(ctx context.Context, executorID, userID int64) {
	st := r.state(userID)
	cfg, err := r.cfg.Get()
	if err != nil {
		r.errorf("handle_user_buffer: config", err)
		return
	}

	// Step 1: coalesce bursts by waiting until the buffer has gone quiet.
	bufferTime := time.Duration(cfg.BufferTime * float64(time.Second))
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for st.idleFor() < bufferTime {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	client, err := r.pool.EnsureClient(ctx, executorID)
	if err != nil {
		r.errorf("handle_user_buffer: ensure_client", err)
		return
	}

	// Step 2: mark the chat as read.
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		r.errorf("handle_user_buffer: get_user", err)
		return
	}
	if user.AccessHash != nil {
		peer, connErr := r.pool.ConnectUser(ctx, client, userID)
		if connErr == nil {
			_ = client.MarkRead(ctx, peer)
		}
	}

	// Step 3: simulate "coming online".
	delay := time.Duration(rand.Float64() * cfg.Delay * float64(time.Second))
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	// Step 4: typing-indicator loop, kept alive until the response is sent
	// and paused while the executor sleeps.
	stopTyping := make(chan struct{})
	var typingOnce sync.Once
	stop := func() { typingOnce.Do(func() { close(stopTyping) }) }
	defer stop()
	go r.typingLoop(ctx, executorID, userID, stopTyping)

	// Step 5: drain the buffer and call the assistant.
	prompt := st.drain()
	if prompt == "" {
		return
	}
	reply, err := r.assistant.Respond(ctx, userID, prompt)
	if err != nil {
		r.errorf("handle_user_buffer: assistant", err)
		return
	}

	// Step 6: cosmetic pre-send delay.
	cosmetic := time.Duration(float64(len(reply.Answer)) * cfg.TypingDelay * float64(time.Second))
	if cosmetic > cosmeticCap {
		cosmetic = cosmeticCap
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(cosmetic):
	}

	// Step 7: dispatch per directive.
	r.dispatchReply(ctx, userID, reply)
	stop()

	if reply.Wait {
		r.armInactivityTimer(ctx, executorID, userID)
	}
}

func (r *Runtime) dispatchReply(ctx context.Context, userID int64, reply Reply) {
	if reply.Send {
		if _, err := r.pool.SendText(ctx, userID, reply.Answer, sendOptionsFor(reply)); err != nil {
			r.errorf("dispatch_reply: send_text", err)
		}
	}
	if reply.File {
		if _, err := r.pool.SendDocument(ctx, userID, r.catalog, "", sendOptionsFor(reply)); err != nil {
			r.errorf("dispatch_reply: send_document", err)
		}
	}
}

func (r *Runtime) typingLoop(ctx context.Context, executorID, userID int64, stop <-chan struct{}) {
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if r.pool.IsSleeping(executorID) {
				continue // pause: no TYPING while the executor is asleep
			}
			client, err := r.pool.EnsureClient(ctx, executorID)
			if err != nil {
				continue
			}
			user, err := r.users.GetUser(ctx, userID)
			if err != nil || user.AccessHash == nil {
				continue
			}
			_ = client.SendTyping(ctx, peerOf(userID, *user.AccessHash))
		}
	}
}

// armInactivityTimer implements spec.md §4.4 step 7: on firing, submits a
// synthetic "user silent" prompt and re-dispatches. A new inbound message
// cancels this timer (Runtime.HandleInbound).
func (r *Runtime) armInactivityTimer(ctx context.Context, executorID, userID int64) {
	st := r.state(userID)
	cfg, cfgErr := r.cfg.Get()
	if cfgErr != nil {
		r.errorf("inactivity_timer: config", cfgErr)
		return
	}
	timerCtx, cancel := context.WithCancel(ctx)

	st.mu.Lock()
	st.cancelInactivity = cancel
	st.mu.Unlock()

	go func() {
		timeout := time.Duration(cfg.InactivityTimeout) * time.Second
		select {
		case <-timerCtx.Done():
			return
		case <-time.After(timeout):
		}

		reply, err := r.assistant.Nudge(timerCtx, userID)
		if err != nil {
			r.errorf("inactivity_timer: nudge", err)
			return
		}
		r.dispatchReply(timerCtx, userID, reply)
		if reply.Wait {
			r.armInactivityTimer(ctx, executorID, userID)
		}
	}()
}
