// Package messaging defines the contract the Client Pool and Rate-Limit &
// Defer Fabric hold against the upstream messaging service (spec.md §6), and
// the closed error taxonomy (spec.md §7, §9 "Dynamic dispatch over
// messaging-client errors") used to decide sleep/defer/rotate behavior.
//
// The upstream messaging service itself is an external collaborator
// (spec.md §1): this package only states the interface the core dispatch
// fabric consumes. internal/telegram provides one concrete implementation.
package messaging

import (
	"context"
	"time"
)

// Peer addresses a prospect. AccessHash is the opaque handle required to
// address a user the executor has never spoken to yet (spec.md glossary).
type Peer struct {
	UserID     int64
	AccessHash int64
}

// Message is one historical message, used by discussion-channel resolution.
// The From fields identify the sender — the access-hash recovery path
// (spec.md §4.2) reads a prospect's hash off a message they wrote in a
// discussion group.
type Message struct {
	ID             int64  `json:"id"`
	Text           string `json:"text"`
	FromID         int64  `json:"from_id"`
	FromAccessHash int64  `json:"from_access_hash"`
}

// Sender is the set of upstream operations spec.md §6 requires: send text,
// send document, read chat history, send typing action, resolve peer,
// get-users by (user_id, access_hash), get discussion message for a channel
// post, get messages by id in a discussion channel, export session blob,
// send code, sign in with code, check 2FA password.
type Sender interface {
	Connect(ctx context.Context) error
	Close() error

	// SendText sends a text message. If first is true and the peer is only
	// known by (user_id, access_hash), the raw InputPeerUser+random-id path
	// is used (spec.md §4.2 "First-contact protocol") instead of the
	// high-level helper that requires a prior conversation.
	SendText(ctx context.Context, peer Peer, text string, replyTo int64, first bool) (messageID int64, err error)
	SendDocument(ctx context.Context, peer Peer, path, caption string, first bool) error
	SendTyping(ctx context.Context, peer Peer) error
	MarkRead(ctx context.Context, peer Peer) error

	// ResolvePeer prefers the full-user lookup; GetUsers is the raw fallback
	// for accounts the executor has never written first (spec.md §4.2
	// connect_user).
	ResolvePeer(ctx context.Context, userID int64) (Peer, error)
	GetUsers(ctx context.Context, peer Peer) (Peer, error)

	GetDiscussionMessage(ctx context.Context, channelID, postID int64) (int64, error)
	GetMessagesByID(ctx context.Context, channelID int64, ids []int64) ([]Message, error)

	ExportSession(ctx context.Context) (string, error)
	SendCode(ctx context.Context, phone string) (phoneCodeHash string, err error)
	SignIn(ctx context.Context, phone, code, codeHash string) error
	CheckPassword(ctx context.Context, password string) error
}

// Factory constructs a Sender for one executor's credentials, session blob,
// and optional proxy. The Client Pool calls this under its per-executor
// connect lock (spec.md §4.2 ensure_client).
type Factory func(executorID int64, apiCredentials, sessionBlob string, proxy *Proxy) Sender

// Proxy mirrors store.Proxy without importing the store package, keeping
// this package free of a persistence dependency.
type Proxy struct {
	Scheme, Host, User, Password string
	Port                         int
}

// ThrottledWait carries the upstream-supplied wait duration for a
// rate-limit-throttled error (spec.md §7).
type ThrottledWait struct {
	Wait time.Duration
}

func (e *ThrottledWait) Error() string { return "throttled: retry after " + e.Wait.String() }

// PeerFloodError signals the account is sending too fast (spec.md §7).
type PeerFloodError struct{}

func (e *PeerFloodError) Error() string { return "peer flood: sending too fast" }

// RecipientBlockedError signals the account is blocked by the recipient.
type RecipientBlockedError struct{}

func (e *RecipientBlockedError) Error() string { return "recipient has blocked this account" }

// PremiumRequiredError signals the recipient demands Telegram Premium to
// receive messages from non-contacts.
type PremiumRequiredError struct{}

func (e *PremiumRequiredError) Error() string { return "recipient requires premium to be contacted" }

// TwoFactorRequiredError signals sign-in needs the account's cloud password
// (spec.md §6 session issuance: "interactive code + optional 2FA").
type TwoFactorRequiredError struct{}

func (e *TwoFactorRequiredError) Error() string { return "two-factor password required" }

// AuthFailedError signals the executor's credentials or proxy are no longer
// valid; the executor becomes ineligible for new assignments until an
// operator runs reload_executor (spec.md §7).
type AuthFailedError struct {
	Proxy bool // true when the failure is proxy-related, not credential-related
}

func (e *AuthFailedError) Error() string {
	if e.Proxy {
		return "proxy connection failed"
	}
	return "authentication failed"
}
