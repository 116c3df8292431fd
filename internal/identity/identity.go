// Package identity derives and persists the node's long-term key pair
// and peer identifier.
//
// The key pair is an Ed25519 key through go-libp2p's crypto package;
// the peer identifier is the canonical base58 multihash of the
// corresponding libp2p public key.
package identity

import (
	"fmt"
	"math/rand"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/zai11/enclave/internal/enclaveerr"
)

const (
	minPort = 49152
	maxPort = 65535
)

// Identity is the node's long-term (key, peer id, port) triple.
type Identity struct {
	PrivateKey libp2pcrypto.PrivKey
	PeerID     peer.ID
	Port       int
	CreatedAt  time.Time
}

// EncodedPrivateKey returns the protobuf-encoded private key, suitable
// for durable storage and for surfacing through a get-my-info query.
func (id Identity) EncodedPrivateKey() ([]byte, error) {
	b, err := libp2pcrypto.MarshalPrivateKey(id.PrivateKey)
	if err != nil {
		return nil, enclaveerr.Crypto("marshal_private_key", err)
	}
	return b, nil
}

// DecodePrivateKey parses the protobuf-encoded private key persisted by
// the store, failing with KeyDecodeFailed on corruption.
func DecodePrivateKey(raw []byte) (libp2pcrypto.PrivKey, error) {
	key, err := libp2pcrypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, enclaveerr.New(enclaveerr.KindCrypto, "decode_private_key", fmt.Errorf("%w: %w", enclaveerr.ErrKeyDecodeFailed, err))
	}
	return key, nil
}

// Generate mints a fresh Ed25519 key pair, derives the peer identifier,
// and chooses a random listening port in the ephemeral range
// [49152, 65535).
func Generate() (Identity, error) {
	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		return Identity{}, enclaveerr.Crypto("generate_ed25519_key", err)
	}
	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return Identity{}, enclaveerr.Crypto("derive_peer_id", err)
	}
	return Identity{
		PrivateKey: priv,
		PeerID:     pid,
		Port:       randomEphemeralPort(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func randomEphemeralPort() int {
	return minPort + rand.Intn(maxPort-minPort)
}

// PeerIDFromString parses the base58 multihash textual form used on the
// wire and in the store, rejecting anything else as InvalidArgument.
func PeerIDFromString(s string) (peer.ID, error) {
	pid, err := peer.Decode(s)
	if err != nil {
		return "", enclaveerr.InvalidArgument("parse_peer_id", err)
	}
	return pid, nil
}
