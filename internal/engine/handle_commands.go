package engine

import (
	"context"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/zai11/enclave/internal/enclaveerr"
	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/wire"
)

// handleCommand dispatches a queued Command to its handler.
func (l *Loop) handleCommand(ctx context.Context, cmd Command) {
	switch {
	case cmd.GetMyInfo != nil:
		l.handleGetMyInfo(*cmd.GetMyInfo)
	case cmd.SendFriendRequest != nil:
		l.handleSendFriendRequest(ctx, *cmd.SendFriendRequest)
	case cmd.AcceptFriendRequest != nil:
		l.handleAcceptFriendRequest(ctx, *cmd.AcceptFriendRequest)
	case cmd.DenyFriendRequest != nil:
		l.handleDenyFriendRequest(ctx, *cmd.DenyFriendRequest)
	case cmd.SendDirectMessage != nil:
		l.handleSendDirectMessage(ctx, *cmd.SendDirectMessage)
	case cmd.Broadcast != nil:
		l.handleBroadcast(ctx, *cmd.Broadcast)
	case cmd.ConnectToRelay != nil:
		l.handleConnectToRelay(ctx, *cmd.ConnectToRelay)
	case cmd.GetFriendList != nil:
		l.handleGetFriendList(*cmd.GetFriendList)
	case cmd.GetInboundFriendRequests != nil:
		l.handleGetInboundFriendRequests(*cmd.GetInboundFriendRequests)
	case cmd.GetDirectMessages != nil:
		l.handleGetDirectMessages(*cmd.GetDirectMessages)
	case cmd.GetListenAddresses != nil:
		l.handleGetListenAddresses(*cmd.GetListenAddresses)
	case cmd.GetFeed != nil:
		l.handleGetFeed(*cmd.GetFeed)
	case cmd.GetBoard != nil:
		l.handleGetBoard(*cmd.GetBoard)
	}
}

func replyErr(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// handleGetMyInfo answers a query for this node's own identity.
func (l *Loop) handleGetMyInfo(cmd GetMyInfo) {
	encoded, err := crypto.MarshalPrivateKey(l.cfg.PrivateKey)
	if err != nil {
		l.emitError("marshal_private_key_for_my_info", enclaveerr.Crypto("get_my_info", err))
		encoded = nil
	}
	cmd.Reply <- MyInfo{
		PeerID:     l.selfID.String(),
		PrivateKey: encoded,
		Multiaddr:  l.preferredAddress(),
	}
}

// preferredAddress returns the address to advertise to peers: a
// relay-circuit address if we hold a relay, otherwise our first
// listen address.
func (l *Loop) preferredAddress() string {
	if l.relayAddr != nil {
		return l.relayAddr.String() + "/p2p-circuit/p2p/" + l.selfID.String()
	}
	addrs := l.sw.ListenAddrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0].String()
}

// handleSendFriendRequest rejects a self-targeted request outright;
// otherwise it sends immediately to an already-connected peer or
// buffers the request and dials.
func (l *Loop) handleSendFriendRequest(ctx context.Context, cmd SendFriendRequest) {
	if cmd.Peer == l.selfID {
		err := enclaveerr.Authorization("self", enclaveerr.ErrSelfDial)
		l.emitError("self", err)
		replyErr(cmd.Reply, err)
		return
	}

	req := wire.FriendRequest{
		FromPeerID:    l.selfID.String(),
		FromMultiaddr: l.preferredAddress(),
		Message:       cmd.Message,
	}

	if l.isConnected(cmd.Peer) {
		err := l.sw.SendEnvelope(ctx, cmd.Peer, wire.NewFriendRequest(req))
		replyErr(cmd.Reply, err)
		return
	}

	l.outboundFriendRequests.Push(cmd.Peer, req)
	if err := l.sw.Dial(ctx, cmd.Address); err != nil {
		l.outboundFriendRequests.Remove(cmd.Peer)
		l.emitError("dial_for_friend_request", err)
		replyErr(cmd.Reply, err)
		return
	}
	replyErr(cmd.Reply, nil)
}

// handleAcceptFriendRequest records the friendship, clears the
// pending request, and sends an acceptance response, dialing first
// if the peer is not already connected.
func (l *Loop) handleAcceptFriendRequest(ctx context.Context, cmd AcceptFriendRequest) {
	peerInfo, err := l.st.GetPeerByPeerID(cmd.Peer.String())
	if err != nil {
		replyErr(cmd.Reply, err)
		return
	}

	if err := l.st.CreateFriend(cmd.Peer.String(), now()); err != nil {
		replyErr(cmd.Reply, err)
		return
	}
	if err := l.st.DeleteFriendRequestByPeer(cmd.Peer.String()); err != nil {
		l.emitError("delete_friend_request_on_accept", err)
	}
	l.friendSet[cmd.Peer] = true
	delete(l.inboundRequests, cmd.Peer)

	resp := wire.FriendRequestResponse{Accepted: true, Multiaddr: l.preferredAddress()}

	if l.isConnected(cmd.Peer) {
		err := l.sw.SendEnvelope(ctx, cmd.Peer, wire.NewFriendRequestResponse(resp))
		replyErr(cmd.Reply, err)
		return
	}

	l.pendingResponses.Push(cmd.Peer, resp)
	addr, addrErr := multiaddr.NewMultiaddr(peerInfo.Multiaddr)
	if addrErr != nil {
		l.pendingResponses.Remove(cmd.Peer)
		replyErr(cmd.Reply, addrErr)
		return
	}
	if err := l.sw.Dial(ctx, addr); err != nil {
		l.pendingResponses.Remove(cmd.Peer)
		replyErr(cmd.Reply, err)
		return
	}
	replyErr(cmd.Reply, nil)
}

// handleDenyFriendRequest clears the pending request and sends a
// denial response without creating any Friend row. If the peer is not
// connected, the response is buffered and sent on its next connection;
// no dial is made.
func (l *Loop) handleDenyFriendRequest(ctx context.Context, cmd DenyFriendRequest) {
	if err := l.st.DeleteFriendRequestByPeer(cmd.Peer.String()); err != nil {
		replyErr(cmd.Reply, err)
		return
	}
	delete(l.inboundRequests, cmd.Peer)

	resp := wire.FriendRequestResponse{Accepted: false, Multiaddr: ""}
	if l.isConnected(cmd.Peer) {
		err := l.sw.SendEnvelope(ctx, cmd.Peer, wire.NewFriendRequestResponse(resp))
		replyErr(cmd.Reply, err)
		return
	}
	l.pendingResponses.Push(cmd.Peer, resp)
	replyErr(cmd.Reply, nil)
}

// handleSendDirectMessage is a silent no-op for a non-friend;
// otherwise it persists the message, emits it, and sends it
// immediately or buffers it pending a dial.
func (l *Loop) handleSendDirectMessage(ctx context.Context, cmd SendDirectMessage) {
	if !l.friendSet[cmd.Peer] {
		replyErr(cmd.Reply, nil)
		return
	}

	row, err := l.st.CreateDirectMessage(l.selfID.String(), cmd.Peer.String(), cmd.Content, now())
	if err != nil {
		replyErr(cmd.Reply, err)
		return
	}
	l.em.Publish(events.NewDirectMessageSent(row))

	wireMsg := wire.DirectMessage{
		FromPeerID: l.selfID.String(),
		ToPeerID:   cmd.Peer.String(),
		Content:    cmd.Content,
		Timestamp:  row.CreatedAt,
	}

	if l.isConnected(cmd.Peer) {
		err := l.sw.SendEnvelope(ctx, cmd.Peer, wire.NewDirectMessage(wireMsg))
		replyErr(cmd.Reply, err)
		return
	}

	l.outboundDirectMessages.Push(cmd.Peer, wireMsg)
	if err := l.sw.Dial(ctx, cmd.Address); err != nil {
		l.emitError("dial_for_direct_message", err)
		replyErr(cmd.Reply, err)
		return
	}
	replyErr(cmd.Reply, nil)
}

// handleBroadcast publishes a direct message to the gossip topic for
// every subscribed friend to receive.
func (l *Loop) handleBroadcast(ctx context.Context, cmd Broadcast) {
	wireMsg := wire.DirectMessage{
		FromPeerID: l.selfID.String(),
		ToPeerID:   "",
		Content:    cmd.Content,
		Timestamp:  now(),
	}
	data, err := marshalDirectMessage(wireMsg)
	if err != nil {
		replyErr(cmd.Reply, err)
		return
	}
	err = l.sw.Publish(ctx, data)
	replyErr(cmd.Reply, err)
}

// handleConnectToRelay dials the relay and records its address as
// this node's preferred advertised path once connected.
func (l *Loop) handleConnectToRelay(ctx context.Context, cmd ConnectToRelay) {
	if err := l.sw.ConnectRelay(ctx, cmd.Addr); err != nil {
		replyErr(cmd.Reply, err)
		return
	}
	l.relayAddr = cmd.Addr
	replyErr(cmd.Reply, nil)
}

// handleGetFriendList answers a query with the in-memory friend set.
func (l *Loop) handleGetFriendList(cmd GetFriendList) {
	out := make([]string, 0, len(l.friendSet))
	for p := range l.friendSet {
		out = append(out, p.String())
	}
	cmd.Reply <- out
}

func (l *Loop) handleGetInboundFriendRequests(cmd GetInboundFriendRequests) {
	out := make([]InboundFriendRequest, 0, len(l.inboundRequests))
	for p, req := range l.inboundRequests {
		out = append(out, InboundFriendRequest{Peer: p.String(), Request: req})
	}
	cmd.Reply <- out
}

func (l *Loop) handleGetDirectMessages(cmd GetDirectMessages) {
	msgs, err := l.st.ListDirectMessagesWithPeer(l.selfID.String(), cmd.Peer.String())
	if err != nil {
		l.emitError("get_direct_messages", err)
		cmd.Reply <- nil
		return
	}
	cmd.Reply <- msgs
}

func (l *Loop) handleGetListenAddresses(cmd GetListenAddresses) {
	cmd.Reply <- l.sw.ListenAddrs()
}

// handleGetFeed answers a query for every post authored by a current
// friend.
func (l *Loop) handleGetFeed(cmd GetFeed) {
	posts, err := l.st.ListFeed()
	if err != nil {
		l.emitError("get_feed", err)
		cmd.Reply <- nil
		return
	}
	cmd.Reply <- posts
}

// handleGetBoard answers a query for every post authored by a single
// peer.
func (l *Loop) handleGetBoard(cmd GetBoard) {
	posts, err := l.st.ListBoard(cmd.Peer.String())
	if err != nil {
		l.emitError("get_board", err)
		cmd.Reply <- nil
		return
	}
	cmd.Reply <- posts
}

// isConnected reports whether p currently has a live connection,
// tracked via ConnectionEstablished/ConnectionClosed events rather
// than queried from the swarm host each time.
func (l *Loop) isConnected(p peer.ID) bool {
	return l.connectedPeers[p]
}
