// Package tools implements the function-call surface the assistant invokes
// by name (spec.md §6, §9 "Assistant-tool function dispatch"): a table of
// name → handler(args, ctx), where ctx carries the prospect id and the
// Persistence handle. Unknown names yield an empty output string.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telemetry"
)

// Def is one tool definition passed to the assistant, JSON-schema
// parameters included.
type Def struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// UserStore is the slice of the Persistence layer the tools mutate,
// accepted as an interface so tests can substitute an in-memory fake.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (store.User, error)
	UpdateUserParam(ctx context.Context, userID int64, column string, value any) error
}

// Context is handed to every handler: the prospect the conversation belongs
// to plus the collaborators the tools mutate.
type Context struct {
	UserID int64
	Users  UserStore
}

// Handler executes one tool call. The returned string goes back to the
// assistant verbatim as the function-call output.
type Handler func(ctx context.Context, tc Context, args json.RawMessage) (string, error)

type registered struct {
	def     Def
	handler Handler
}

// Registry is the dispatch table.
type Registry struct {
	tools map[string]registered
	log   *telemetry.Logger
}

func NewRegistry(log *telemetry.Logger) *Registry {
	return &Registry{tools: make(map[string]registered), log: log}
}

// Register adds one tool. Later registrations under the same name win.
func (r *Registry) Register(def Def, h Handler) {
	r.tools[def.Name] = registered{def: def, handler: h}
}

// Defs returns every definition, for inclusion in assistant requests.
func (r *Registry) Defs() []Def {
	out := make([]Def, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	return out
}

// Execute dispatches one call by name. An unknown name yields "" (spec.md
// §9); a handler error is logged per-prospect and reported to the assistant
// as the error text so the model can recover conversationally — tool errors
// never kill the runtime (spec.md §7).
func (r *Registry) Execute(ctx context.Context, tc Context, name string, args json.RawMessage) string {
	t, ok := r.tools[name]
	if !ok {
		return ""
	}

	start := time.Now()
	out, err := t.handler(ctx, tc, args)
	if r.log != nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		r.log.ToolExec(name, time.Since(start).Milliseconds(), err == nil, msg)
	}
	if err != nil {
		return err.Error()
	}
	return out
}
