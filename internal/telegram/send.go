package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/local/outreach/internal/messaging"
)

// SendText sends a text message. When first is true and the peer is only
// known by (UserID, AccessHash), it takes the raw InputPeerUser+random-id
// send path instead of the conversational helper (spec.md §4.2 "First-contact
// protocol"): the upstream service addresses the peer directly rather than
// requiring a prior dialogue handle.
func (c *Client) SendText(ctx context.Context, peer messaging.Peer, text string, replyTo int64, first bool) (int64, error) {
	payload := map[string]any{
		"peer": map[string]any{
			"user_id":     peer.UserID,
			"access_hash": peer.AccessHash,
		},
		"text": text,
	}
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
	}
	if first {
		payload["raw_peer"] = true
		payload["random_id"] = randomID()
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.do(ctx, "messages.send", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// SendDocument sends a file with an optional caption, using the same
// first-contact raw-peer path as SendText.
func (c *Client) SendDocument(ctx context.Context, peer messaging.Peer, path, caption string, first bool) error {
	payload := map[string]any{
		"peer": map[string]any{
			"user_id":     peer.UserID,
			"access_hash": peer.AccessHash,
		},
		"path":    path,
		"caption": caption,
	}
	if first {
		payload["raw_peer"] = true
		payload["random_id"] = randomID()
	}
	return c.do(ctx, "messages.sendDocument", payload, nil)
}

// SendTyping issues one typing action. The Conversation Runtime's typing
// loop calls this every 5s (spec.md §4.4).
func (c *Client) SendTyping(ctx context.Context, peer messaging.Peer) error {
	return c.do(ctx, "messages.setTyping", map[string]any{
		"peer": map[string]any{"user_id": peer.UserID, "access_hash": peer.AccessHash},
		"action": "typing",
	}, nil)
}

// MarkRead marks the chat history with peer as read (spec.md §4.4 step 2).
func (c *Client) MarkRead(ctx context.Context, peer messaging.Peer) error {
	return c.do(ctx, "messages.readHistory", map[string]any{
		"peer": map[string]any{"user_id": peer.UserID, "access_hash": peer.AccessHash},
	}, nil)
}

// randomID generates the random 64-bit id the raw send path requires to
// deduplicate retried sends, mirroring how MTProto-shaped clients tag
// outgoing messages before a server-assigned id exists.
func randomID() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.BigEndian.Uint64(b[:]))
}
