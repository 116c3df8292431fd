// Package engine implements the single-threaded cooperative event
// loop: one goroutine owns the swarm handle and all mutable protocol
// state, selecting between inbound network events and queued
// commands on each iteration.
package engine

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/zai11/enclave/internal/config"
	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/logging"
	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/swarm"
	"github.com/zai11/enclave/internal/wire"
)

// Loop owns the swarm, the durable store handle, and every piece of
// volatile protocol state. No part of that state is exposed to other
// goroutines directly; callers reach it through Submit and the event
// stream only.
type Loop struct {
	sw     swarm.Swarm
	st     *store.Store
	em     *events.Emitter
	log    logging.Logger
	selfID peer.ID
	cfg    config.Config

	cmdQueue *commandQueue

	// friendSet mirrors tbl_friends for O(1) membership checks inside
	// the loop without a store round trip per message.
	friendSet map[peer.ID]bool

	// connectedPeers tracks live connections observed via
	// ConnectionEstablished/ConnectionClosed, used to decide whether a
	// command can send immediately or must buffer.
	connectedPeers map[peer.ID]bool

	// inboundRequests mirrors tbl_friend_requests, seeded at startup
	// and kept current as requests arrive/resolve.
	inboundRequests map[peer.ID]wire.FriendRequest

	outboundFriendRequests *Outbox[wire.FriendRequest]
	pendingResponses       *Outbox[wire.FriendRequestResponse]
	outboundDirectMessages *Outbox[wire.DirectMessage]

	relayAddr multiaddr.Multiaddr
}

// New constructs a Loop ready to Run. Friend list and pending-request
// state is loaded from st eagerly.
func New(sw swarm.Swarm, st *store.Store, em *events.Emitter, log logging.Logger, cfg config.Config) (*Loop, error) {
	l := &Loop{
		sw:                     sw,
		st:                     st,
		em:                     em,
		log:                    log,
		selfID:                 cfg.PeerID,
		cfg:                    cfg,
		cmdQueue:               newCommandQueue(),
		friendSet:              make(map[peer.ID]bool),
		connectedPeers:         make(map[peer.ID]bool),
		inboundRequests:        make(map[peer.ID]wire.FriendRequest),
		outboundFriendRequests: NewOutbox[wire.FriendRequest](),
		pendingResponses:       NewOutbox[wire.FriendRequestResponse](),
		outboundDirectMessages: NewOutbox[wire.DirectMessage](),
	}

	friends, err := st.ListFriends()
	if err != nil {
		return nil, err
	}
	for _, f := range friends {
		if pid, perr := peer.Decode(f.PeerID); perr == nil {
			l.friendSet[pid] = true
		}
	}

	requests, err := st.ListFriendRequests()
	if err != nil {
		return nil, err
	}
	for _, r := range requests {
		if pid, perr := peer.Decode(r.FromPeerID); perr == nil {
			l.inboundRequests[pid] = wire.FriendRequest{
				FromPeerID:    r.FromPeerID,
				FromMultiaddr: r.FromMultiaddr,
				Message:       r.Message,
			}
		}
	}

	return l, nil
}

// Submit enqueues cmd for the loop to apply on its next iteration.
// Safe to call from any goroutine; callers communicate with the loop
// only through the command queue and the event stream.
func (l *Loop) Submit(cmd Command) {
	l.cmdQueue.push(cmd)
}

// Run drives the loop until ctx is cancelled or the swarm's event
// channel closes. It never returns on a processing error: failures are
// converted to Error events and the loop continues.
func (l *Loop) Run(ctx context.Context) {
	netEvents := l.sw.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-netEvents:
			if !ok {
				return
			}
			l.handleNetEvent(ctx, ev)

		case <-l.cmdQueue.notify:
			for _, cmd := range l.cmdQueue.drain() {
				l.handleCommand(ctx, cmd)
			}
		}
	}
}

func (l *Loop) handleNetEvent(ctx context.Context, ev swarm.NetEvent) {
	switch {
	case ev.NewListenAddr != nil:
		l.log.Infof("listening on %s", ev.NewListenAddr.Addr)

	case ev.ConnectionEstablished != nil:
		l.handleConnectionEstablished(ctx, *ev.ConnectionEstablished)

	case ev.ConnectionClosed != nil:
		delete(l.connectedPeers, ev.ConnectionClosed.Peer)
		l.em.Publish(events.NewPeerDisconnected(ev.ConnectionClosed.Peer.String()))

	case ev.EnvelopeReceived != nil:
		l.handleEnvelope(ctx, ev.EnvelopeReceived.From, ev.EnvelopeReceived.Envelope)

	case ev.GossipMessageReceived != nil:
		l.handleGossipMessage(ev.GossipMessageReceived.From, ev.GossipMessageReceived.Data)

	case ev.OutboundFailure != nil:
		l.emitError("outbound_request", ev.OutboundFailure.Err)

	case ev.InboundFailure != nil:
		l.emitError("inbound_request", ev.InboundFailure.Err)
	}
}

func (l *Loop) emitError(context string, err error) {
	l.log.Warnf("%s: %v", context, err)
	l.em.Publish(events.NewError(context, err))
}

// now is the loop's clock; factored out so tests can hold time fixed
// without depending on wall-clock ordering.
var now = func() int64 { return time.Now().Unix() }
