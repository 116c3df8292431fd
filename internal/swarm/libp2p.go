package swarm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	multiaddr "github.com/multiformats/go-multiaddr"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/zai11/enclave/internal/enclaveerr"
	"github.com/zai11/enclave/internal/logging"
	"github.com/zai11/enclave/internal/wire"
)

// Host is the real, libp2p-backed Swarm implementation: Noise +
// yamux transport security/muxing, relay-v2 client transport,
// gossipsub, and a single listen address.
type Host struct {
	host       host.Host
	pubsub     *pubsub.PubSub
	topic      *pubsub.Topic
	subscribe  *pubsub.Subscription
	ping       *ping.PingService
	log        logging.Logger
	events     chan NetEvent
	cancel     context.CancelFunc

	mu          sync.Mutex
	relayAddr   multiaddr.Multiaddr
	listenAddrs []multiaddr.Multiaddr
}

// New constructs a Host with the connection-level primitives the swarm
// needs: Noise handshake, yamux multiplexing, relay-v2 client transport
// (for dialing through a relay once one is configured), DCUtR hole
// punching, a liveness ping service, and the gossipsub router. Start
// joins and subscribes the gossip topic once the host is listening.
//
// If binding port fails (most commonly because it's already in use),
// New retries once with an OS-assigned port (0). Callers must check
// BoundPort() against the port they requested and persist the result
// if it changed.
func New(priv crypto.PrivKey, port int, log logging.Logger) (*Host, error) {
	h, err := newHostOnPort(priv, port)
	if err != nil {
		log.Warnf("bind on port %d failed (%v), falling back to an OS-assigned port", port, err)
		h, err = newHostOnPort(priv, 0)
		if err != nil {
			return nil, err
		}
	}

	pingSvc := ping.NewPingService(h)

	events := make(chan NetEvent, 4096)

	sw := &Host{
		host:   h,
		ping:   pingSvc,
		log:    log,
		events: events,
	}

	gs, err := pubsub.NewGossipSub(context.Background(), h,
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
	)
	if err != nil {
		h.Close()
		return nil, enclaveerr.Transport("construct_gossipsub", err)
	}
	sw.pubsub = gs

	h.SetStreamHandler(wire.ProtocolID, sw.handleStream)
	h.Network().Notify(&notifiee{sw: sw})

	return sw, nil
}

func newHostOnPort(priv crypto.PrivKey, port int) (host.Host, error) {
	listenAddr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port)

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.EnableRelay(),
		libp2p.EnableHolePunching(),
		libp2p.EnableNATService(),
	)
	if err != nil {
		return nil, enclaveerr.Transport("construct_host", err)
	}
	return h, nil
}

// BoundPort returns the TCP port the host actually ended up listening
// on, which may differ from the port requested of New if that one was
// already taken and New fell back to an OS-assigned port.
func (s *Host) BoundPort() (int, error) {
	for _, addr := range s.host.Addrs() {
		if v, err := addr.ValueForProtocol(multiaddr.P_TCP); err == nil {
			port, err := strconv.Atoi(v)
			if err != nil {
				return 0, enclaveerr.Transport("parse_bound_port", err)
			}
			return port, nil
		}
	}
	return 0, enclaveerr.Transport("bound_port", fmt.Errorf("host has no TCP listen address"))
}

// Start subscribes the gossip topic, records the host's listen
// addresses, and begins the gossip-consume loop.
func (s *Host) Start(ctx context.Context) error {
	topic, err := s.pubsub.Join(wire.GossipTopic)
	if err != nil {
		return enclaveerr.Transport("join_gossip_topic", err)
	}
	s.topic = topic

	sub, err := topic.Subscribe()
	if err != nil {
		return enclaveerr.Transport("subscribe_gossip_topic", err)
	}
	s.subscribe = sub

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.listenAddrs = append([]multiaddr.Multiaddr(nil), s.host.Addrs()...)
	s.mu.Unlock()
	for _, a := range s.host.Addrs() {
		s.publish(newListenAddrEvent(a))
	}

	go s.consumeGossip(ctx)

	return nil
}

// Close shuts the host down and stops delivering events.
func (s *Host) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.subscribe != nil {
		s.subscribe.Cancel()
	}
	err := s.host.Close()
	close(s.events)
	return err
}

func (s *Host) LocalPeerID() peer.ID { return s.host.ID() }

func (s *Host) ListenAddrs() []multiaddr.Multiaddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]multiaddr.Multiaddr(nil), s.listenAddrs...)
}

func (s *Host) Dial(ctx context.Context, addr multiaddr.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return enclaveerr.InvalidArgument("parse_dial_addr", err)
	}
	if err := s.host.Connect(ctx, *info); err != nil {
		return enclaveerr.Transport("dial", err)
	}
	return nil
}

func (s *Host) SendEnvelope(ctx context.Context, to peer.ID, env wire.Envelope) error {
	stream, err := s.host.NewStream(ctx, to, wire.ProtocolID)
	if err != nil {
		s.publish(outboundFailureEvent(to, err))
		return enclaveerr.Transport("open_stream", err)
	}
	defer stream.Close()

	if err := wire.WriteFrame(stream, env); err != nil {
		s.publish(outboundFailureEvent(to, err))
		return enclaveerr.Transport("write_frame", err)
	}
	return nil
}

func (s *Host) Publish(ctx context.Context, data []byte) error {
	if s.topic == nil {
		return enclaveerr.Transport("publish", fmt.Errorf("gossip topic not joined; call Start first"))
	}
	if err := s.topic.Publish(ctx, data); err != nil {
		return enclaveerr.Transport("publish", err)
	}
	return nil
}

func (s *Host) ConnectRelay(ctx context.Context, addr multiaddr.Multiaddr) error {
	if err := s.Dial(ctx, addr); err != nil {
		return err
	}
	s.mu.Lock()
	s.relayAddr = addr
	s.mu.Unlock()
	return nil
}

func (s *Host) Events() <-chan NetEvent { return s.events }

// handleStream is the request/response inbound path: negotiate the
// protocol version, read one framed envelope, and publish it as an
// EnvelopeReceived NetEvent for the engine loop to dispatch.
func (s *Host) handleStream(stream network.Stream) {
	defer stream.Close()

	remote := stream.Conn().RemotePeer()
	if err := wire.NegotiateVersion(string(stream.Protocol())); err != nil {
		s.publish(inboundFailureEvent(remote, err))
		return
	}

	env, err := wire.ReadFrame(bufio.NewReader(stream))
	if err != nil {
		s.publish(inboundFailureEvent(remote, err))
		return
	}
	s.publish(envelopeReceivedEvent(remote, env))
}

func (s *Host) consumeGossip(ctx context.Context) {
	for {
		msg, err := s.subscribe.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		var probe json.RawMessage
		if err := json.Unmarshal(msg.Data, &probe); err != nil {
			s.log.Warnf("dropping malformed gossip payload from %s: %v", msg.ReceivedFrom, err)
			continue
		}
		s.publish(gossipMessageReceivedEvent(msg.ReceivedFrom, msg.Data))
	}
}

func (s *Host) publish(ev NetEvent) {
	select {
	case s.events <- ev:
	default:
		s.log.Warnf("net event buffer full, dropping %+v", ev)
	}
}

// notifiee adapts libp2p's network.Notifiee callback interface into
// ConnectionEstablished/ConnectionClosed NetEvents.
type notifiee struct {
	sw *Host
}

func (n *notifiee) Connected(_ network.Network, c network.Conn) {
	n.sw.publish(connectionEstablishedEvent(c.RemotePeer(), c.RemoteMultiaddr()))
}

func (n *notifiee) Disconnected(_ network.Network, c network.Conn) {
	n.sw.publish(connectionClosedEvent(c.RemotePeer()))
}

func (n *notifiee) Listen(_ network.Network, _ multiaddr.Multiaddr)      {}
func (n *notifiee) ListenClose(_ network.Network, _ multiaddr.Multiaddr) {}
