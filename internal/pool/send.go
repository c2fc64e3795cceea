package pool

import (
	"context"
	"fmt"

	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/store"
)

// SendOptions carries send_text/send_document's optional parameters
// (spec.md §4.2).
type SendOptions struct {
	ReplyTo int64
	First   bool

	// ExplicitClient/ExplicitExecutorID let a caller that has already
	// resolved a client (the Outreach Scheduler, mid-batch) skip a second
	// ensure_client round-trip. Both must be set together.
	ExplicitClient     messaging.Sender
	ExplicitExecutorID int64
}

func (p *Pool) resolveExecutor(ctx context.Context, userID int64, opts SendOptions) (int64, error) {
	if opts.ExplicitClient != nil {
		return opts.ExplicitExecutorID, nil
	}
	u, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("resolve executor: %w", err)
	}
	if u.ExecutorID == nil {
		return 0, fmt.Errorf("resolve executor: user %d has no assigned executor", userID)
	}
	return *u.ExecutorID, nil
}

// SendText implements spec.md §4.2's send_text: resolve the executor (from
// user_id unless an explicit client is passed), defer if the executor is
// sleeping, otherwise send and classify any error into the sleep/defer/
// rotate/disable behaviors spec.md §7 describes. Returns true only on a
// confirmed delivery.
func (p *Pool) SendText(ctx context.Context, userID int64, text string, opts SendOptions) (bool, error) {
	executorID, err := p.resolveExecutor(ctx, userID, opts)
	if err != nil {
		return false, err
	}

	if p.IsSleeping(executorID) {
		p.enqueue(executorID, func(ctx context.Context) { _, _ = p.SendText(ctx, userID, text, opts) })
		return false, nil
	}

	client := opts.ExplicitClient
	if client == nil {
		client, err = p.EnsureClient(ctx, executorID)
		if err != nil {
			return false, err
		}
	}

	peer, err := p.peerFor(ctx, client, userID)
	if err != nil {
		return false, err
	}

	_, sendErr := client.SendText(ctx, peer, text, opts.ReplyTo, opts.First)
	return p.handleSendResult(ctx, executorID, userID, sendErr, func(ctx context.Context) {
		_, _ = p.SendText(ctx, userID, text, opts)
	})
}

// SendDocument implements spec.md §4.2's send_document, sharing SendText's
// resolve/sleep/classify machinery.
func (p *Pool) SendDocument(ctx context.Context, userID int64, path, caption string, opts SendOptions) (bool, error) {
	executorID, err := p.resolveExecutor(ctx, userID, opts)
	if err != nil {
		return false, err
	}

	if p.IsSleeping(executorID) {
		p.enqueue(executorID, func(ctx context.Context) { _, _ = p.SendDocument(ctx, userID, path, caption, opts) })
		return false, nil
	}

	client := opts.ExplicitClient
	if client == nil {
		client, err = p.EnsureClient(ctx, executorID)
		if err != nil {
			return false, err
		}
	}

	peer, err := p.peerFor(ctx, client, userID)
	if err != nil {
		return false, err
	}

	sendErr := client.SendDocument(ctx, peer, path, caption, opts.First)
	return p.handleSendResult(ctx, executorID, userID, sendErr, func(ctx context.Context) {
		_, _ = p.SendDocument(ctx, userID, path, caption, opts)
	})
}

// handleSendResult is the shared tail of SendText/SendDocument: classify the
// send error and apply the matching spec.md §7 behavior.
func (p *Pool) handleSendResult(ctx context.Context, executorID, userID int64, sendErr error, retry func(context.Context)) (bool, error) {
	cls := messaging.Classify(sendErr)
	switch cls.Kind {
	case messaging.KindOK:
		p.resetBackoff(executorID)
		_ = p.executors.ExecutorTimestamp(ctx, executorID)
		return true, nil

	case messaging.KindThrottled:
		p.sleepExecutor(executorID, cls.Wait)
		p.enqueue(executorID, retry)
		return false, nil

	case messaging.KindPeerFlooded:
		p.sleepExecutor(executorID, p.nextBackoff(executorID))
		p.enqueue(executorID, retry)
		return false, nil

	case messaging.KindRecipientBlocked:
		_ = p.users.UpdateUserParam(ctx, userID, "banned", true)
		return false, nil

	case messaging.KindPremiumRequired:
		_ = p.users.RotateUserDown(ctx, userID)
		return false, nil

	case messaging.KindAuthFailed:
		status := store.StatusDisconnected
		if cls.Proxy {
			status = store.StatusProxyOrAuthFailed
		}
		_ = p.executors.UpdateExecutorParam(ctx, executorID, "status", string(status))
		if p.log != nil {
			p.log.ExecutorState(executorID, string(status))
		}
		return false, sendErr

	default: // KindOther
		_ = p.users.RotateUserDown(ctx, userID)
		return false, sendErr
	}
}

// peerFor resolves a prospect's (user_id, access_hash) pair, preferring the
// stored access_hash and falling back to ConnectUser's live lookup when it's
// missing (spec.md §4.2 connect_user).
func (p *Pool) peerFor(ctx context.Context, client messaging.Sender, userID int64) (messaging.Peer, error) {
	u, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return messaging.Peer{}, fmt.Errorf("peer_for: %w", err)
	}
	if u.AccessHash != nil {
		return messaging.Peer{UserID: userID, AccessHash: *u.AccessHash}, nil
	}
	return p.ConnectUser(ctx, client, userID)
}

// ConnectUser implements spec.md §4.2's connect_user: resolve a prospect's
// access_hash via the full-dialogue lookup, falling back to the raw GetUsers
// call, and persist whichever hash is found.
func (p *Pool) ConnectUser(ctx context.Context, client messaging.Sender, userID int64) (messaging.Peer, error) {
	peer, err := client.ResolvePeer(ctx, userID)
	if err != nil {
		peer, err = client.GetUsers(ctx, messaging.Peer{UserID: userID})
		if err != nil {
			return messaging.Peer{}, fmt.Errorf("connect_user: %w", err)
		}
	}
	if err := p.users.UpdateUserParam(ctx, userID, "access_hash", peer.AccessHash); err != nil {
		return messaging.Peer{}, fmt.Errorf("connect_user: persist access_hash: %w", err)
	}
	return peer, nil
}

