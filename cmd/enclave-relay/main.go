// Command enclave-relay runs a standalone circuit-relay v2 server: a
// well-known, publicly reachable libp2p host that other Enclave nodes
// behind NATs register with so their peers can reach them via
// ConnectToRelay/DCUtR hole punching.
//
// It never joins the gossip topic, never speaks the /enclave/1.0.0
// request/response protocol, and never opens a store: relaying is the
// only thing this binary does.
package main

import (
	"context"
	"crypto/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/zai11/enclave/internal/logging"
)

var (
	port    = kingpin.Flag("port", "TCP port to listen on").Default("4001").Int()
	keyFile = kingpin.Flag("key-file", "path to the relay's persisted private key").Default("relay_key.bin").String()
)

func main() {
	kingpin.Parse()

	log := logging.NewDefault()

	priv, err := loadOrCreateKey(*keyFile)
	if err != nil {
		log.Fatal(err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddrFor(*port)),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.EnableRelayService(),
		libp2p.ForceReachabilityPublic(),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	log.Infof("relay %s listening on:", h.ID())
	for _, addr := range h.Addrs() {
		log.Infof("  %s/p2p/%s", addr, h.ID())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Info("shutting down")
}

func listenAddrFor(port int) string {
	return "/ip4/0.0.0.0/tcp/" + strconv.Itoa(port)
}

// loadOrCreateKey persists the relay's identity across restarts so its
// peer id (and thus the addresses nodes configure as their relay) stays
// stable, reading and writing a single standalone key file instead of
// a full node store.
func loadOrCreateKey(path string) (crypto.PrivKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return crypto.UnmarshalPrivateKey(raw)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, _, genErr := crypto.GenerateEd25519Key(rand.Reader)
	if genErr != nil {
		return nil, genErr
	}
	encoded, encErr := crypto.MarshalPrivateKey(priv)
	if encErr != nil {
		return nil, encErr
	}
	if writeErr := os.WriteFile(path, encoded, 0600); writeErr != nil {
		return nil, writeErr
	}
	return priv, nil
}
