package telegram

import (
	"context"

	"github.com/local/outreach/internal/messaging"
)

// ResolvePeer performs the full-user lookup spec.md §4.2's connect_user
// prefers. It returns the peer's AccessHash, refreshed for accounts the
// executor has an existing dialogue with.
func (c *Client) ResolvePeer(ctx context.Context, userID int64) (messaging.Peer, error) {
	var result struct {
		UserID     int64 `json:"user_id"`
		AccessHash int64 `json:"access_hash"`
	}
	err := c.do(ctx, "users.resolve", map[string]any{"user_id": userID}, &result)
	if err != nil {
		return messaging.Peer{}, err
	}
	return messaging.Peer{UserID: result.UserID, AccessHash: result.AccessHash}, nil
}

// GetUsers is the raw GetUsers(InputUser(user_id, access_hash)) fallback
// spec.md §4.2 specifies for accounts the executor has never written first
// — ResolvePeer's full-dialogue lookup would fail for them.
func (c *Client) GetUsers(ctx context.Context, peer messaging.Peer) (messaging.Peer, error) {
	var result struct {
		UserID     int64 `json:"user_id"`
		AccessHash int64 `json:"access_hash"`
	}
	err := c.do(ctx, "users.getUsers", map[string]any{
		"input_user": map[string]any{"user_id": peer.UserID, "access_hash": peer.AccessHash},
	}, &result)
	if err != nil {
		return messaging.Peer{}, err
	}
	return messaging.Peer{UserID: result.UserID, AccessHash: result.AccessHash}, nil
}

// GetDiscussionMessage resolves a channel post to its mirrored message in
// the channel's linked discussion group — part of the access_hash recovery
// path spec.md §4.2 references ("missing access_hash may be recovered from a
// referenced source message").
func (c *Client) GetDiscussionMessage(ctx context.Context, channelID, postID int64) (int64, error) {
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	err := c.do(ctx, "messages.getDiscussionMessage", map[string]any{
		"channel_id": channelID,
		"post_id":    postID,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// GetMessagesByID fetches specific messages from a discussion channel by
// id, used to find the message whose sender carries the access_hash a
// newly ingested prospect is missing.
func (c *Client) GetMessagesByID(ctx context.Context, channelID int64, ids []int64) ([]messaging.Message, error) {
	var result struct {
		Messages []messaging.Message `json:"messages"`
	}
	err := c.do(ctx, "messages.getMessages", map[string]any{
		"channel_id": channelID,
		"ids":        ids,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}
