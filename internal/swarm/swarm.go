// Package swarm wraps a libp2p host behind a small interface the
// engine drives without importing libp2p directly: direct dial,
// request/response, gossip publish, relay circuit, and connection
// lifecycle notification.
package swarm

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/zai11/enclave/internal/wire"
)

// Swarm is the seam between internal/engine and the networking stack.
// A real implementation wraps a libp2p host (swarm/libp2p.go); tests
// use swarm/swarmtest's in-memory fake instead.
type Swarm interface {
	// Start brings the host up: subscribes the gossip topic, reports
	// the listen addresses as NewListenAddr NetEvents, and begins
	// delivering gossip NetEvents. The listen socket itself is bound
	// when the implementation is constructed.
	Start(ctx context.Context) error

	// Close tears the host down, unblocking Events().
	Close() error

	// LocalPeerID returns this node's own peer identifier.
	LocalPeerID() peer.ID

	// ListenAddrs returns the host's currently bound listen addresses.
	ListenAddrs() []multiaddr.Multiaddr

	// Dial opens a connection to addr. A ConnectionEstablished NetEvent
	// follows on success; the caller does not block waiting for it.
	Dial(ctx context.Context, addr multiaddr.Multiaddr) error

	// SendEnvelope opens (or reuses) a request/response stream to `to`
	// and writes env. The call is synchronous with the write, not with
	// any response; replies, if any, arrive as an EnvelopeReceived
	// NetEvent like any other inbound frame.
	SendEnvelope(ctx context.Context, to peer.ID, env wire.Envelope) error

	// Publish broadcasts data on the gossip topic.
	Publish(ctx context.Context, data []byte) error

	// ConnectRelay dials a circuit-relay v2 relay and records it as the
	// current relay; no reservation is requested from the relay. The
	// engine then advertises <relay>/p2p-circuit/p2p/<our-peer-id>.
	ConnectRelay(ctx context.Context, addr multiaddr.Multiaddr) error

	// Events returns the channel of inbound network occurrences the
	// engine's loop selects over.
	Events() <-chan NetEvent
}
