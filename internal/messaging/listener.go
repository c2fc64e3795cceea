package messaging

import "context"

// Update is one inbound event the upstream messaging service delivers to a
// connected account: a private text message from a prospect (spec.md §4.4).
type Update struct {
	UserID    int64
	MessageID int64
	Text      string
}

// Listener is implemented by Senders that can stream inbound updates. Not
// every Sender needs it (a write-only test fake doesn't), so the Client Pool
// type-asserts for it rather than requiring it on Sender.
type Listener interface {
	// Listen blocks, invoking onUpdate for each inbound message, until ctx is
	// cancelled or the upstream connection fails.
	Listen(ctx context.Context, onUpdate func(Update)) error
}
