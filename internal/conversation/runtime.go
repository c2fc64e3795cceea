// Package conversation implements the Conversation Runtime (spec.md §4.4):
// per-prospect message buffering, the coalescing window, the typing-cadence
// simulation, and the inactivity-nudge timer that feeds the assistant.
//
// Grounded on the teacher's sdk/agent/agent.go runLLMTurn (buffer-then-call
// shape) and the per-update dispatch loop Run() drives, generalized from one
// shared chat loop to one in-memory state machine per prospect.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/local/outreach/internal/config"
	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/pool"
	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telemetry"
)

// Assistant is the narrow contract the runtime needs from the LLM
// conversation service (spec.md §6) — accepted as an interface so this
// package never imports internal/assistant directly.
type Assistant interface {
	Respond(ctx context.Context, userID int64, prompt string) (Reply, error)
	// Nudge submits the synthetic "user silent" prompt the inactivity timer
	// fires (spec.md §4.4 step 7).
	Nudge(ctx context.Context, userID int64) (Reply, error)
}

// ClientPool is the subset of *pool.Pool the runtime needs, accepted as an
// interface so tests can substitute a fake rather than drive a real
// messaging connection (grounded on the teacher's agent.Messenger split).
type ClientPool interface {
	EnsureClient(ctx context.Context, executorID int64) (messaging.Sender, error)
	ConnectUser(ctx context.Context, client messaging.Sender, userID int64) (messaging.Peer, error)
	SendText(ctx context.Context, userID int64, text string, opts pool.SendOptions) (bool, error)
	SendDocument(ctx context.Context, userID int64, path, caption string, opts pool.SendOptions) (bool, error)
	IsSleeping(executorID int64) bool
	Defer(executorID int64, job func(context.Context))
}

// Users is the subset of *store.UserRepo the runtime needs.
type Users interface {
	GetUser(ctx context.Context, userID int64) (store.User, error)
	UserTimestamp(ctx context.Context, userID int64) error
}

// Reply is the assistant's structured directive (spec.md §6): "the
// response's output_text is a JSON object with fields
// {answer, send, file, wait, reply}".
type Reply struct {
	Answer  string
	Send    bool
	File    bool
	Wait    bool
	ReplyTo int64
}

// promptDelimiter separates coalesced buffered messages in the single
// prompt handed to the assistant (spec.md §4.4 step 5: "lines separated by
// a fixed delimiter").
const promptDelimiter = "\n---\n"

// Runtime owns every prospect's in-memory buffer and timers (spec.md §3
// ownership: "The Conversation Runtime owns per-prospect in-memory buffers
// and timers").
type Runtime struct {
	pool      ClientPool
	users     Users
	assistant Assistant
	cfg       *config.Store
	catalog   string
	log       *telemetry.Logger

	statesMu sync.Mutex
	states   map[int64]*prospectState
}

// New constructs a Runtime. catalogPath is the document path sent when the
// assistant's reply signals file=true.
func New(p ClientPool, users Users, assistant Assistant, cfg *config.Store, catalogPath string, log *telemetry.Logger) *Runtime {
	return &Runtime{
		pool:      p,
		users:     users,
		assistant: assistant,
		cfg:       cfg,
		catalog:   catalogPath,
		log:       log,
		states:    make(map[int64]*prospectState),
	}
}

// Handler returns a pool.Handler bound to this Runtime, ready for
// Pool.AddHandler — the Process Supervisor wires this at startup.
func (r *Runtime) Handler() pool.Handler {
	return func(ctx context.Context, executorID int64, update messaging.Update) {
		r.HandleInbound(ctx, executorID, update)
	}
}

func (r *Runtime) state(userID int64) *prospectState {
	r.statesMu.Lock()
	defer r.statesMu.Unlock()
	st, ok := r.states[userID]
	if !ok {
		st = &prospectState{}
		r.states[userID] = st
	}
	return st
}

// HandleInbound implements spec.md §4.4's incoming-message handler, applied
// per live client for private text messages.
func (r *Runtime) HandleInbound(ctx context.Context, executorID int64, update messaging.Update) {
	user, err := r.users.GetUser(ctx, update.UserID)
	if err != nil {
		return // unknown to Persistence: drop
	}
	if user.Banned {
		return
	}
	_ = r.users.UserTimestamp(ctx, update.UserID)

	if user.ExecutorID == nil || *user.ExecutorID != executorID {
		return // cross-talk guard
	}

	if user.AccessHash == nil {
		client, err := r.pool.EnsureClient(ctx, executorID)
		if err == nil {
			_, _ = r.pool.ConnectUser(ctx, client, update.UserID)
		}
	}

	st := r.state(update.UserID)
	st.mu.Lock()
	st.buffer = append(st.buffer, bufferedMessage{messageID: update.MessageID, text: update.Text})
	st.lastMessageTS = time.Now()
	if st.cancelUser != nil {
		st.cancelUser()
		st.cancelUser = nil
	}
	if st.cancelInactivity != nil {
		st.cancelInactivity()
		st.cancelInactivity = nil
	}
	st.mu.Unlock()

	if r.pool.IsSleeping(executorID) {
		r.pool.Defer(executorID, func(ctx context.Context) {
			r.handleUserBuffer(ctx, executorID, update.UserID)
		})
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	st.mu.Lock()
	st.cancelUser = cancel
	st.mu.Unlock()
	go r.handleUserBuffer(taskCtx, executorID, update.UserID)
}

func (r *Runtime) errorf(where string, err error) {
	if r.log != nil && err != nil {
		r.log.Error(where, err)
	}
}
