package swarm

import (
	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/zai11/enclave/internal/wire"
)

// NetEvent is the tagged union of occurrences the engine's loop
// selects over, translated from libp2p's SwarmEvent/gossipsub.Event
// callback style into an explicit struct delivered on a channel.
type NetEvent struct {
	NewListenAddr         *NewListenAddr
	ConnectionEstablished *ConnectionEstablished
	ConnectionClosed      *ConnectionClosed
	EnvelopeReceived      *EnvelopeReceived
	GossipMessageReceived *GossipMessageReceived
	OutboundFailure       *OutboundFailure
	InboundFailure        *InboundFailure
}

type NewListenAddr struct{ Addr multiaddr.Multiaddr }

// ConnectionEstablished carries the remote multiaddr so the engine
// can upsert the Peer row.
type ConnectionEstablished struct {
	Peer     peer.ID
	Endpoint multiaddr.Multiaddr
}

type ConnectionClosed struct{ Peer peer.ID }

// EnvelopeReceived is an inbound request/response frame over
// wire.ProtocolID.
type EnvelopeReceived struct {
	From     peer.ID
	Envelope wire.Envelope
}

// GossipMessageReceived is a raw payload from the gossip topic; the
// engine is responsible for JSON-decoding it into a wire.DirectMessage.
type GossipMessageReceived struct {
	From peer.ID
	Data []byte
}

// OutboundFailure mirrors reqres::Event::OutboundFailure.
type OutboundFailure struct {
	Peer peer.ID
	Err  error
}

// InboundFailure mirrors reqres::Event::InboundFailure.
type InboundFailure struct {
	Peer peer.ID
	Err  error
}

func newListenAddrEvent(addr multiaddr.Multiaddr) NetEvent {
	return NetEvent{NewListenAddr: &NewListenAddr{Addr: addr}}
}

func connectionEstablishedEvent(p peer.ID, endpoint multiaddr.Multiaddr) NetEvent {
	return NetEvent{ConnectionEstablished: &ConnectionEstablished{Peer: p, Endpoint: endpoint}}
}

func connectionClosedEvent(p peer.ID) NetEvent {
	return NetEvent{ConnectionClosed: &ConnectionClosed{Peer: p}}
}

func envelopeReceivedEvent(from peer.ID, env wire.Envelope) NetEvent {
	return NetEvent{EnvelopeReceived: &EnvelopeReceived{From: from, Envelope: env}}
}

func gossipMessageReceivedEvent(from peer.ID, data []byte) NetEvent {
	return NetEvent{GossipMessageReceived: &GossipMessageReceived{From: from, Data: data}}
}

func outboundFailureEvent(p peer.ID, err error) NetEvent {
	return NetEvent{OutboundFailure: &OutboundFailure{Peer: p, Err: err}}
}

func inboundFailureEvent(p peer.ID, err error) NetEvent {
	return NetEvent{InboundFailure: &InboundFailure{Peer: p, Err: err}}
}
