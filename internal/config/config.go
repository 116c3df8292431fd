// Package config loads or creates the node's persistent identity and
// port choice, combining internal/identity and internal/store: no
// env/flag framework inside this package, only a loaded struct.
package config

import (
	"errors"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/zai11/enclave/internal/enclaveerr"
	"github.com/zai11/enclave/internal/identity"
	"github.com/zai11/enclave/internal/store"
)

// Config is the node's resolved runtime identity: a keypair, its
// derived peer identifier, and the TCP port to listen on.
type Config struct {
	PrivateKey libp2pcrypto.PrivKey
	PeerID     peer.ID
	Port       int
}

// LoadOrCreate fetches the singleton identity row from st, decoding
// its stored keypair; if none exists yet, it generates a fresh Ed25519
// identity, picks an ephemeral port, and persists both.
func LoadOrCreate(st *store.Store) (Config, error) {
	row, err := st.GetIdentity()
	if err == nil {
		priv, decErr := identity.DecodePrivateKey(row.PrivateKey)
		if decErr != nil {
			return Config{}, decErr
		}
		pid, decErr := identity.PeerIDFromString(row.PeerID)
		if decErr != nil {
			return Config{}, decErr
		}
		return Config{PrivateKey: priv, PeerID: pid, Port: row.Port}, nil
	}
	if !errors.Is(err, enclaveerr.ErrIdentityNotFound) {
		return Config{}, err
	}

	id, err := identity.Generate()
	if err != nil {
		return Config{}, err
	}

	encoded, err := id.EncodedPrivateKey()
	if err != nil {
		return Config{}, err
	}

	if err := st.CreateIdentity(encoded, id.PeerID.String(), id.Port, time.Now().Unix()); err != nil {
		return Config{}, err
	}

	return Config{PrivateKey: id.PrivateKey, PeerID: id.PeerID, Port: id.Port}, nil
}

// PersistPort records a newly OS-assigned port after a bind conflict
// on the configured one.
func PersistPort(st *store.Store, port int) error {
	return st.UpdateIdentityPort(port)
}
