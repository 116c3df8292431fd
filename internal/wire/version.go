package wire

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// LatestProtocolVersion is the version segment of ProtocolID this
// build speaks, checked with a proper semver comparison against the
// libp2p stream protocol string rather than an exact-match check,
// since ProtocolID carries a dotted version ("1.0.0").
const LatestProtocolVersion = "1.0.0"

// ErrUnsupportedProtocol is returned when a remote peer's protocol
// string can't be parsed or is newer than this build understands.
var ErrUnsupportedProtocol = fmt.Errorf("unsupported protocol version")

// NegotiateVersion parses the version segment out of a stream protocol
// id of the form "/enclave/<version>" and checks it against
// LatestProtocolVersion, rejecting anything with a greater major
// version (a peer running a future, possibly incompatible, release).
func NegotiateVersion(protocolID string) error {
	segment := protocolID
	if idx := strings.LastIndex(protocolID, "/"); idx >= 0 {
		segment = protocolID[idx+1:]
	}

	remote, err := version.NewVersion(segment)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedProtocol, err)
	}
	local, err := version.NewVersion(LatestProtocolVersion)
	if err != nil {
		return fmt.Errorf("parse local protocol version: %w", err)
	}

	if remote.Segments()[0] > local.Segments()[0] {
		return fmt.Errorf("%w: remote speaks %s, this build speaks %s", ErrUnsupportedProtocol, remote, local)
	}
	return nil
}
