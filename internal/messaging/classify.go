package messaging

import (
	"errors"
	"time"
)

// Kind is the closed tagged-variant discriminator for Classification,
// grounded on the teacher's llm/retry.go shouldRetryError/shouldRetryStatus
// pattern of inspecting an error to decide behavior (spec.md §9).
type Kind int

const (
	KindOK Kind = iota
	KindThrottled
	KindPeerFlooded
	KindRecipientBlocked
	KindPremiumRequired
	KindAuthFailed
	KindOther
)

// Classification is the result of inspecting a Sender error, consumed by
// the Rate-Limit & Defer Fabric's send_text/send_document error handling
// (spec.md §4.3, §7).
type Classification struct {
	Kind  Kind
	Wait  time.Duration // set only for KindThrottled
	Proxy bool          // set only for KindAuthFailed
	Err   error
}

// Classify maps a Sender error onto the closed taxonomy spec.md §7 defines.
// Unrecognized errors classify as KindOther, which the fabric treats as
// "any other exception": rotate_user_down, no retry.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindOK}
	}

	var throttled *ThrottledWait
	if errors.As(err, &throttled) {
		return Classification{Kind: KindThrottled, Wait: throttled.Wait, Err: err}
	}
	var flood *PeerFloodError
	if errors.As(err, &flood) {
		return Classification{Kind: KindPeerFlooded, Err: err}
	}
	var blocked *RecipientBlockedError
	if errors.As(err, &blocked) {
		return Classification{Kind: KindRecipientBlocked, Err: err}
	}
	var premium *PremiumRequiredError
	if errors.As(err, &premium) {
		return Classification{Kind: KindPremiumRequired, Err: err}
	}
	var auth *AuthFailedError
	if errors.As(err, &auth) {
		return Classification{Kind: KindAuthFailed, Proxy: auth.Proxy, Err: err}
	}
	return Classification{Kind: KindOther, Err: err}
}
