package engine

import (
	"context"

	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/swarm"
	"github.com/zai11/enclave/internal/wire"
)

// handleConnectionEstablished upserts the Peer row for the
// now-connected peer, emits PeerConnected, then drains every buffered
// outbound operation for that peer: the pending friend request, then
// the pending friend-request response, then the queued direct
// messages.
func (l *Loop) handleConnectionEstablished(ctx context.Context, ev swarm.ConnectionEstablished) {
	endpoint := ""
	if ev.Endpoint != nil {
		endpoint = ev.Endpoint.String()
	}
	if _, err := l.st.UpsertPeer(ev.Peer.String(), endpoint, now()); err != nil {
		l.emitError("upsert_peer_on_connect", err)
	}

	l.connectedPeers[ev.Peer] = true
	l.em.Publish(events.NewPeerConnected(ev.Peer.String()))

	if req, ok := l.outboundFriendRequests.Peek(ev.Peer); ok {
		if err := l.sw.SendEnvelope(ctx, ev.Peer, wire.NewFriendRequest(req)); err != nil {
			l.emitError("drain_friend_request", err)
		}
		l.outboundFriendRequests.Remove(ev.Peer)
	}

	if resp, ok := l.pendingResponses.Peek(ev.Peer); ok {
		if err := l.sw.SendEnvelope(ctx, ev.Peer, wire.NewFriendRequestResponse(resp)); err != nil {
			l.emitError("drain_friend_request_response", err)
		}
		l.pendingResponses.Remove(ev.Peer)
	}

	for _, msg := range l.outboundDirectMessages.Drain(ev.Peer) {
		if err := l.sw.SendEnvelope(ctx, ev.Peer, wire.NewDirectMessage(msg)); err != nil {
			l.emitError("drain_direct_message", err)
		}
	}
}
