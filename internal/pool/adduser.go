package pool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/store"
)

// AddUser implements spec.md §4.2's add_user: insert the prospect row, run
// assign_executor, then use the assigned executor's client to fill
// access_hash. Username and phone are stored as given on u; they are not
// looked up through the client. A missing access_hash may be recovered
// from a referenced source message via the discussion-channel lookup
// (sourceLink, spec.md §4.2/§6).
//
// Hydration failures are non-fatal: the prospect stays in the store with
// whatever was resolved, and ConnectUser retries the hash on the first send.
func (p *Pool) AddUser(ctx context.Context, u store.User, explicitExecutor *int64, sourceLink string) (int64, bool, error) {
	if err := p.users.AddUser(ctx, u); err != nil {
		return 0, false, err
	}

	executorID, assigned, err := p.users.AssignExecutor(ctx, u.UserID, explicitExecutor)
	if err != nil || !assigned {
		return 0, assigned, err
	}

	client, err := p.EnsureClient(ctx, executorID)
	if err != nil {
		// Keep the assignment; hydration happens on first contact instead.
		if p.log != nil {
			p.log.Error("add_user: ensure_client", err)
		}
		return executorID, true, nil
	}

	peer, resolveErr := p.resolveNewUser(ctx, client, u.UserID, sourceLink)
	if resolveErr != nil {
		if p.log != nil {
			p.log.Error("add_user: resolve", resolveErr)
		}
		return executorID, true, nil
	}
	if err := p.users.UpdateUserParam(ctx, u.UserID, "access_hash", peer.AccessHash); err != nil {
		return executorID, true, err
	}
	return executorID, true, nil
}

// resolveNewUser finds a fresh prospect's peer handle: source-message
// recovery first (it works even when the account has never seen the user),
// then the ordinary ConnectUser lookup chain.
func (p *Pool) resolveNewUser(ctx context.Context, client messaging.Sender, userID int64, sourceLink string) (messaging.Peer, error) {
	if sourceLink != "" {
		if peer, err := p.hashViaDiscussion(ctx, client, userID, sourceLink); err == nil {
			return peer, nil
		}
	}
	return p.ConnectUser(ctx, client, userID)
}

// hashViaDiscussion recovers a prospect's access_hash from the channel post
// they commented on: resolve the post to its mirrored discussion message,
// fetch it, and read the sender's hash off it. The recovered sender must be
// the prospect we asked about — a mismatch means the link points at someone
// else's message.
func (p *Pool) hashViaDiscussion(ctx context.Context, client messaging.Sender, userID int64, link string) (messaging.Peer, error) {
	channelID, postID, ok := parseSourceLink(link)
	if !ok {
		return messaging.Peer{}, fmt.Errorf("hash_via_discussion: unparseable link %q", link)
	}

	msgID, err := client.GetDiscussionMessage(ctx, channelID, postID)
	if err != nil {
		return messaging.Peer{}, fmt.Errorf("hash_via_discussion: %w", err)
	}
	msgs, err := client.GetMessagesByID(ctx, channelID, []int64{msgID})
	if err != nil {
		return messaging.Peer{}, fmt.Errorf("hash_via_discussion: %w", err)
	}
	if len(msgs) == 0 {
		return messaging.Peer{}, fmt.Errorf("hash_via_discussion: message %d not found", msgID)
	}
	if msgs[0].FromID != userID {
		return messaging.Peer{}, fmt.Errorf("hash_via_discussion: message sender %d is not user %d", msgs[0].FromID, userID)
	}
	return messaging.Peer{UserID: userID, AccessHash: msgs[0].FromAccessHash}, nil
}

// parseSourceLink extracts (channelID, postID) from a t.me/c/<id>/<post>
// private-channel link. Public-username links can't be resolved without an
// extra round-trip and are left to the ConnectUser fallback.
func parseSourceLink(link string) (channelID, postID int64, ok bool) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(link, "https://"), "http://")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	// t.me / c / <channel> / <post>
	if len(parts) != 4 || parts[0] != "t.me" || parts[1] != "c" {
		return 0, 0, false
	}
	channelID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	postID, err = strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return channelID, postID, true
}
