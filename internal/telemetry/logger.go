// Package telemetry provides the structured event logger shared by every
// component of the engine.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the event-shaped methods the rest of
// the engine calls. Keeping named methods instead of passing zerolog.Logger
// around directly keeps call sites uniform across packages and makes it
// obvious which events are structurally significant.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing JSON lines to w at the given level.
// level accepts zerolog's level names ("debug", "info", "warn", "error");
// an unrecognized or empty level defaults to "info".
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{z: z}
}

// Named returns a child logger tagging every event with component=name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.With().Str("component", name).Logger()}
}

func (l *Logger) Inbound(executorID int64, userID int64, text string) {
	l.z.Info().
		Str("event", "inbound").
		Int64("executor_id", executorID).
		Int64("user_id", userID).
		Str("text", text).
		Msg("inbound message")
}

func (l *Logger) Outbound(executorID int64, userID int64, text string) {
	l.z.Info().
		Str("event", "outbound").
		Int64("executor_id", executorID).
		Int64("user_id", userID).
		Str("text", text).
		Msg("outbound message")
}

func (l *Logger) LLMCall(model string, tokensIn, tokensOut int, durationMs int64) {
	l.z.Info().
		Str("event", "llm_call").
		Str("model", model).
		Int("tokens_in", tokensIn).
		Int("tokens_out", tokensOut).
		Int64("duration_ms", durationMs).
		Msg("assistant call")
}

func (l *Logger) ToolExec(tool string, durationMs int64, success bool, errMsg string) {
	ev := l.z.Info().
		Str("event", "tool_exec").
		Str("tool", tool).
		Int64("duration_ms", durationMs).
		Bool("success", success)
	if errMsg != "" {
		ev = ev.Str("error", errMsg)
	}
	ev.Msg("tool executed")
}

func (l *Logger) ExecutorState(executorID int64, status string) {
	l.z.Info().
		Str("event", "executor_state").
		Int64("executor_id", executorID).
		Str("status", status).
		Msg("executor status change")
}

func (l *Logger) Sleep(executorID int64, until time.Time, reason string) {
	l.z.Warn().
		Str("event", "sleep").
		Int64("executor_id", executorID).
		Time("until", until).
		Str("reason", reason).
		Msg("executor sleeping")
}

func (l *Logger) Error(where string, err error) {
	ev := l.z.Error().Str("event", "error").Str("where", where)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("error")
}
