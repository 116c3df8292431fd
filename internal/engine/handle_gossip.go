package engine

import (
	"encoding/json"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/wire"
)

// handleGossipMessage is a best-effort broadcast accepted only from a
// current friend and, unlike the request/response path, never
// persisted.
func (l *Loop) handleGossipMessage(from peer.ID, data []byte) {
	if !l.friendSet[from] {
		return
	}

	var msg wire.DirectMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.emitError("decode_gossip_direct_message", err)
		return
	}

	l.em.Publish(events.NewDirectMessageReceived(store.DirectMessage{
		SenderPeerID:    msg.FromPeerID,
		RecipientPeerID: msg.ToPeerID,
		Content:         msg.Content,
		CreatedAt:       msg.Timestamp,
	}))
}
