package messaging

import (
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
	}{
		{"nil is ok", nil, KindOK},
		{"throttled", &ThrottledWait{Wait: 5 * time.Second}, KindThrottled},
		{"peer flood", &PeerFloodError{}, KindPeerFlooded},
		{"recipient blocked", &RecipientBlockedError{}, KindRecipientBlocked},
		{"premium required", &PremiumRequiredError{}, KindPremiumRequired},
		{"auth failed", &AuthFailedError{}, KindAuthFailed},
		{"unrecognized error", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Fatalf("Classify(%v).Kind = %v, want %v", tt.err, got.Kind, tt.wantKind)
			}
		})
	}
}

func TestClassifyPreservesThrottleWait(t *testing.T) {
	cls := Classify(&ThrottledWait{Wait: 30 * time.Second})
	if cls.Wait != 30*time.Second {
		t.Fatalf("Wait = %v, want 30s", cls.Wait)
	}
}

func TestClassifyPreservesAuthFailedProxyFlag(t *testing.T) {
	cls := Classify(&AuthFailedError{Proxy: true})
	if !cls.Proxy {
		t.Fatalf("expected Proxy=true classification to propagate")
	}
}
