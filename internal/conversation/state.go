package conversation

import (
	"context"
	"sync"
	"time"
)

// bufferedMessage is one coalesced inbound line (spec.md §4.4: "buffer,
// ordered list of (message_id, text) tagged strings").
type bufferedMessage struct {
	messageID int64
	text      string
}

// prospectState is one prospect's in-memory state: buffer, timestamp, and
// the at-most-one user_task/inactivity_task invariant (spec.md §8 #4).
type prospectState struct {
	mu               sync.Mutex
	buffer           []bufferedMessage
	lastMessageTS    time.Time
	cancelUser       context.CancelFunc
	cancelInactivity context.CancelFunc
}

// drain empties the buffer and joins it into a single prompt, lines
// separated by promptDelimiter (spec.md §4.4 step 5).
func (st *prospectState) drain() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.buffer) == 0 {
		return ""
	}
	out := st.buffer[0].text
	for _, m := range st.buffer[1:] {
		out += promptDelimiter + m.text
	}
	st.buffer = nil
	return out
}

func (st *prospectState) idleFor() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	return time.Since(st.lastMessageTS)
}
