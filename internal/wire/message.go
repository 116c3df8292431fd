// Package wire implements the `/enclave/1.0.0` request/response protocol:
// a length-framed CBOR encoding of a tagged union.
//
// The five variants are carried as a single-field object keyed by the
// variant's lowerCamelCase name. This externally tagged CBOR envelope
// (a map with exactly one key) stands in for a Go type-switch over concrete structs, since Go has
// no native sum type.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolID is the libp2p stream protocol identifier this package's
// envelopes are framed over.
const ProtocolID = "/enclave/1.0.0"

// GossipTopic is the single global pub/sub topic.
const GossipTopic = "enclave-messages"

// maxFrameSize bounds a single inbound frame to guard against a
// misbehaving peer exhausting memory with a bogus length prefix.
const maxFrameSize = 16 << 20 // 16 MiB

// FriendRequest is sent to propose a friendship.
type FriendRequest struct {
	FromPeerID    string `cbor:"fromPeerId"`
	FromMultiaddr string `cbor:"fromMultiaddr"`
	Message       string `cbor:"message"`
}

// FriendRequestResponse answers a FriendRequest.
type FriendRequestResponse struct {
	Accepted  bool   `cbor:"accepted"`
	Multiaddr string `cbor:"multiaddr"`
}

// DirectMessage carries end-to-end direct message content, both over
// the request/response channel and (serialized separately as JSON)
// over the gossip topic.
type DirectMessage struct {
	FromPeerID string `cbor:"fromPeerId" json:"fromPeerId"`
	ToPeerID   string `cbor:"toPeerId" json:"toPeerId"`
	Content    string `cbor:"content" json:"content"`
	Timestamp  int64  `cbor:"timestamp" json:"timestamp"`
}

// SynchRequest asks a friend for posts created or edited since a point
// in time.
type SynchRequest struct {
	Since  int64  `cbor:"since"`
	Sender string `cbor:"sender"`
}

// Post mirrors the durable Post entity as carried on the wire during
// sync.
type Post struct {
	ID        int64  `cbor:"id"`
	Author    string `cbor:"author"`
	Content   string `cbor:"content"`
	CreatedAt int64  `cbor:"createdAt"`
	EditedAt  *int64 `cbor:"editedAt,omitempty"`
}

// SynchResponse answers a SynchRequest.
type SynchResponse struct {
	CreatedPosts []Post `cbor:"createdPosts"`
	EditedPosts  []Post `cbor:"editedPosts"`
	Sender       string `cbor:"sender"`
}

// Envelope is the tagged union carried over the request/response
// channel. Exactly one field is non-nil.
type Envelope struct {
	FriendRequest         *FriendRequest         `cbor:"friendRequest,omitempty"`
	FriendRequestResponse *FriendRequestResponse `cbor:"friendRequestResponse,omitempty"`
	DirectMessage         *DirectMessage         `cbor:"directMessage,omitempty"`
	SynchRequest          *SynchRequest          `cbor:"synchRequest,omitempty"`
	SynchResponse         *SynchResponse         `cbor:"synchResponse,omitempty"`
}

func NewFriendRequest(v FriendRequest) Envelope         { return Envelope{FriendRequest: &v} }
func NewFriendRequestResponse(v FriendRequestResponse) Envelope {
	return Envelope{FriendRequestResponse: &v}
}
func NewDirectMessage(v DirectMessage) Envelope { return Envelope{DirectMessage: &v} }
func NewSynchRequest(v SynchRequest) Envelope    { return Envelope{SynchRequest: &v} }
func NewSynchResponse(v SynchResponse) Envelope  { return Envelope{SynchResponse: &v} }

// Variant names the single populated field, used for logging and for
// rejecting malformed envelopes with more than one (or zero) variants
// set.
func (e Envelope) Variant() (string, error) {
	set := 0
	name := ""
	for n, ok := range map[string]bool{
		"friendRequest":         e.FriendRequest != nil,
		"friendRequestResponse": e.FriendRequestResponse != nil,
		"directMessage":         e.DirectMessage != nil,
		"synchRequest":          e.SynchRequest != nil,
		"synchResponse":         e.SynchResponse != nil,
	} {
		if ok {
			set++
			name = n
		}
	}
	if set != 1 {
		return "", fmt.Errorf("envelope must carry exactly one variant, found %d", set)
	}
	return name, nil
}

// WriteFrame writes a length-prefixed CBOR encoding of env to w.
func WriteFrame(w io.Writer, env Envelope) error {
	payload, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed CBOR envelope from r.
func ReadFrame(r io.Reader) (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return Envelope{}, fmt.Errorf("frame of %d bytes exceeds maximum of %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := cbor.Unmarshal(buf, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}
