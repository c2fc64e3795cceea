package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/local/outreach/internal/messaging"
)

// pollUpdate is the wire shape of one inbound update; only text messages
// with a sender reach onUpdate. The shape carries no chat type, so private
// and group messages are not told apart here.
type pollUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		From      *struct {
			UserID int64 `json:"user_id"`
		} `json:"from"`
	} `json:"message,omitempty"`
}

const pollTimeoutSeconds = 30

// Listen long-polls for inbound updates until ctx is cancelled, grounded on
// the teacher's Poll() offset/timeout shape. It satisfies messaging.Listener.
func (c *Client) Listen(ctx context.Context, onUpdate func(messaging.Update)) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw []pollUpdate
		err := c.do(ctx, "updates.getUpdates", map[string]any{
			"offset":  offset,
			"timeout": pollTimeoutSeconds,
		}, &raw)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range raw {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil || u.Message.Text == "" {
				continue
			}
			onUpdate(messaging.Update{
				UserID:    u.Message.From.UserID,
				MessageID: u.Message.MessageID,
				Text:      u.Message.Text,
			})
		}
	}
}
