package conversation

import (
	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/pool"
)

func sendOptionsFor(reply Reply) pool.SendOptions {
	return pool.SendOptions{ReplyTo: reply.ReplyTo}
}

func peerOf(userID, accessHash int64) messaging.Peer {
	return messaging.Peer{UserID: userID, AccessHash: accessHash}
}
