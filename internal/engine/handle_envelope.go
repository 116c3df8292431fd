package engine

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/zai11/enclave/internal/enclaveerr"
	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/wire"
)

// handleEnvelope dispatches an inbound request/response frame to the
// matching variant handler.
func (l *Loop) handleEnvelope(ctx context.Context, from peer.ID, env wire.Envelope) {
	variant, err := env.Variant()
	if err != nil {
		l.emitError("decode_envelope", err)
		return
	}

	switch variant {
	case "friendRequest":
		l.handleInboundFriendRequest(from, *env.FriendRequest)
	case "friendRequestResponse":
		l.handleInboundFriendRequestResponse(ctx, from, *env.FriendRequestResponse)
	case "directMessage":
		l.handleInboundDirectMessage(*env.DirectMessage)
	case "synchRequest":
		l.handleInboundSynchRequest(ctx, from, *env.SynchRequest)
	case "synchResponse":
		l.handleInboundSynchResponse(*env.SynchResponse)
	}
}

// handleInboundFriendRequest records a pending friend request from a
// new or known peer, coalescing it into any already-pending row.
func (l *Loop) handleInboundFriendRequest(from peer.ID, req wire.FriendRequest) {
	l.em.Publish(events.NewFriendRequestReceived(from.String(), req))

	if _, err := l.st.UpsertPeer(req.FromPeerID, req.FromMultiaddr, now()); err != nil {
		l.emitError("upsert_peer_on_friend_request", err)
		return
	}
	if err := l.st.UpsertFriendRequest(req.FromPeerID, req.FromMultiaddr, req.Message, now()); err != nil {
		l.emitError("store_friend_request", err)
		return
	}

	l.inboundRequests[from] = req
}

// handleInboundFriendRequestResponse finalizes an outbound friend
// request: on acceptance it records the friendship; on denial it
// clears the tracker and emits a denial event.
func (l *Loop) handleInboundFriendRequestResponse(ctx context.Context, from peer.ID, resp wire.FriendRequestResponse) {
	l.outboundFriendRequests.Remove(from)

	if !resp.Accepted {
		l.em.Publish(events.NewFriendRequestDenied(from.String()))
		return
	}

	if _, err := l.st.UpsertPeer(from.String(), resp.Multiaddr, now()); err != nil {
		l.emitError("upsert_peer_on_friend_response", err)
		return
	}
	if err := l.st.CreateFriend(from.String(), now()); err != nil {
		l.emitError("create_friend_on_response", err)
		return
	}
	l.friendSet[from] = true
	l.em.Publish(events.NewFriendRequestAccepted(from.String()))
}

// handleInboundDirectMessage persists an inbound message from a
// friend. The `from` field on the wire envelope is authoritative for
// sender identity even though the frame itself also carries an
// authenticated remote peer id at the stream layer.
func (l *Loop) handleInboundDirectMessage(msg wire.DirectMessage) {
	if msg.FromPeerID == "system" {
		return
	}

	fromID, err := peer.Decode(msg.FromPeerID)
	if err != nil {
		l.emitError("decode_direct_message_sender", err)
		return
	}
	if !l.friendSet[fromID] {
		return
	}
	blocked, err := l.st.IsBlocked(msg.FromPeerID)
	if err != nil {
		l.emitError("check_blocked_direct_message", err)
		return
	}
	if blocked {
		return
	}

	row, err := l.st.CreateDirectMessage(msg.FromPeerID, msg.ToPeerID, msg.Content, msg.Timestamp)
	if err != nil {
		l.emitError("persist_direct_message", err)
		return
	}
	l.em.Publish(events.NewDirectMessageReceived(row))
}

// handleInboundSynchRequest answers a friend's SynchRequest with this
// node's own posts modified since the requested timestamp.
func (l *Loop) handleInboundSynchRequest(ctx context.Context, from peer.ID, req wire.SynchRequest) {
	if !l.friendSet[from] {
		l.emitError("synch_request_not_friend", enclaveerr.Authorization("synch_request", enclaveerr.ErrNotFriend))
		return
	}

	created, edited, err := l.st.ListPostsSince(l.selfID.String(), req.Since)
	if err != nil {
		l.emitError("list_posts_since", err)
		return
	}

	resp := wire.SynchResponse{
		CreatedPosts: toWirePosts(created),
		EditedPosts:  toWirePosts(edited),
		Sender:       l.selfID.String(),
	}
	if err := l.sw.SendEnvelope(ctx, from, wire.NewSynchResponse(resp)); err != nil {
		l.emitError("send_synch_response", err)
	}
}

// handleInboundSynchResponse merges a friend's posts into the local
// store: inserts missing created posts and updates edited ones, both
// matched by author and created_at rather than by the remote post id.
func (l *Loop) handleInboundSynchResponse(resp wire.SynchResponse) {
	created := fromWirePosts(resp.CreatedPosts)
	edited := fromWirePosts(resp.EditedPosts)

	if err := l.st.UpsertPostsFromSync(resp.Sender, created, false); err != nil {
		l.emitError("sync_created_posts", err)
		return
	}
	if err := l.st.UpsertPostsFromSync(resp.Sender, edited, true); err != nil {
		l.emitError("sync_edited_posts", err)
		return
	}
	l.em.Publish(events.NewPostSynch(resp.Sender, len(created), len(edited)))
}
