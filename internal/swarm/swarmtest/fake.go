// Package swarmtest provides an in-memory fake implementing
// swarm.Swarm, used by internal/engine's tests in place of a real
// libp2p host: hand-rolled test doubles wired together through a
// shared registry rather than a mocking framework.
package swarmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/zai11/enclave/internal/enclaveerr"
	"github.com/zai11/enclave/internal/swarm"
	"github.com/zai11/enclave/internal/wire"
)

// Registry wires a set of Fake swarms together so Dial/SendEnvelope/
// Publish on one are visible to the others.
type Registry struct {
	mu    sync.Mutex
	peers map[peer.ID]*Fake
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[peer.ID]*Fake)}
}

func (r *Registry) register(f *Fake) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[f.id] = f
}

func (r *Registry) lookup(id peer.ID) (*Fake, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.peers[id]
	return f, ok
}

func (r *Registry) others(exclude peer.ID) []*Fake {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Fake, 0, len(r.peers))
	for id, f := range r.peers {
		if id != exclude {
			out = append(out, f)
		}
	}
	return out
}

// Fake is a fully in-memory stand-in for swarm.Host. Addresses are
// synthetic (`/p2p/<peer-id>`, with no transport part) and carry no
// actual network meaning;
// Dial/ConnectRelay succeed whenever the target peer is present in the
// shared Registry and fail otherwise, which is sufficient to drive the
// engine's connect/buffer/drain logic under test.
type Fake struct {
	id       peer.ID
	registry *Registry
	events   chan swarm.NetEvent
	addr     multiaddr.Multiaddr

	mu        sync.Mutex
	connected map[peer.ID]bool
	relay     multiaddr.Multiaddr
	closed    bool
}

// New constructs a Fake for id, registering it in reg so other Fakes
// in the same test can dial and message it.
func New(reg *Registry, id peer.ID) *Fake {
	addr, _ := multiaddr.NewMultiaddr(fmt.Sprintf("/p2p/%s", id.String()))
	f := &Fake{
		id:        id,
		registry:  reg,
		events:    make(chan swarm.NetEvent, 256),
		addr:      addr,
		connected: make(map[peer.ID]bool),
	}
	reg.register(f)
	return f
}

func (f *Fake) Start(ctx context.Context) error {
	f.publish(swarm.NetEvent{NewListenAddr: &swarm.NewListenAddr{Addr: f.addr}})
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *Fake) LocalPeerID() peer.ID { return f.id }

func (f *Fake) ListenAddrs() []multiaddr.Multiaddr {
	return []multiaddr.Multiaddr{f.addr}
}

func addrPeerID(addr multiaddr.Multiaddr) (peer.ID, error) {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err == nil {
		return info.ID, nil
	}
	// Synthetic /fake/<peer-id> addresses are not valid /p2p multiaddrs;
	// parse the peer id out of the literal string instead.
	s := addr.String()
	const prefix = "/fake/"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return peer.Decode(s[len(prefix):])
	}
	return "", fmt.Errorf("cannot resolve peer id from fake addr %q", s)
}

func (f *Fake) Dial(ctx context.Context, addr multiaddr.Multiaddr) error {
	target, err := addrPeerID(addr)
	if err != nil {
		return enclaveerr.InvalidArgument("fake_dial_parse", err)
	}
	peerFake, ok := f.registry.lookup(target)
	if !ok {
		return enclaveerr.Transport("fake_dial", fmt.Errorf("no such fake peer %s", target))
	}

	f.mu.Lock()
	f.connected[target] = true
	f.mu.Unlock()
	peerFake.mu.Lock()
	peerFake.connected[f.id] = true
	peerFake.mu.Unlock()

	f.publish(swarm.NetEvent{ConnectionEstablished: &swarm.ConnectionEstablished{Peer: target, Endpoint: peerFake.addr}})
	peerFake.publish(swarm.NetEvent{ConnectionEstablished: &swarm.ConnectionEstablished{Peer: f.id, Endpoint: f.addr}})
	return nil
}

func (f *Fake) SendEnvelope(ctx context.Context, to peer.ID, env wire.Envelope) error {
	peerFake, ok := f.registry.lookup(to)
	if !ok {
		f.publish(swarm.NetEvent{OutboundFailure: &swarm.OutboundFailure{Peer: to, Err: fmt.Errorf("no such fake peer")}})
		return enclaveerr.Transport("fake_send_envelope", fmt.Errorf("no such fake peer %s", to))
	}
	peerFake.publish(swarm.NetEvent{EnvelopeReceived: &swarm.EnvelopeReceived{From: f.id, Envelope: env}})
	return nil
}

func (f *Fake) Publish(ctx context.Context, data []byte) error {
	for _, other := range f.registry.others(f.id) {
		other.publish(swarm.NetEvent{GossipMessageReceived: &swarm.GossipMessageReceived{From: f.id, Data: data}})
	}
	return nil
}

func (f *Fake) ConnectRelay(ctx context.Context, addr multiaddr.Multiaddr) error {
	f.mu.Lock()
	f.relay = addr
	f.mu.Unlock()
	return f.Dial(ctx, addr)
}

func (f *Fake) Events() <-chan swarm.NetEvent { return f.events }

// Disconnect simulates a lost connection, letting tests exercise the
// ConnectionClosed path without tearing down the Fake.
func (f *Fake) Disconnect(other peer.ID) {
	f.mu.Lock()
	delete(f.connected, other)
	f.mu.Unlock()
	f.publish(swarm.NetEvent{ConnectionClosed: &swarm.ConnectionClosed{Peer: other}})
}

func (f *Fake) publish(ev swarm.NetEvent) {
	defer func() { recover() }()
	f.events <- ev
}
