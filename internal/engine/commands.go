package engine

import (
	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/wire"
)

// Command is the tagged union of caller-issued operations, queued to
// the loop via Loop.Submit and applied to volatile state only inside
// Run.
type Command struct {
	GetMyInfo                 *GetMyInfo
	SendFriendRequest         *SendFriendRequest
	AcceptFriendRequest       *AcceptFriendRequest
	DenyFriendRequest         *DenyFriendRequest
	SendDirectMessage         *SendDirectMessage
	Broadcast                 *Broadcast
	ConnectToRelay            *ConnectToRelay
	GetFriendList             *GetFriendList
	GetInboundFriendRequests  *GetInboundFriendRequests
	GetDirectMessages         *GetDirectMessages
	GetListenAddresses        *GetListenAddresses
	GetFeed                   *GetFeed
	GetBoard                  *GetBoard
}

// MyInfo answers GetMyInfo.
type MyInfo struct {
	PeerID     string
	PrivateKey []byte
	Multiaddr  string
}

type GetMyInfo struct{ Reply chan MyInfo }

type SendFriendRequest struct {
	Peer    peer.ID
	Address multiaddr.Multiaddr
	Message string
	Reply   chan error
}

type AcceptFriendRequest struct {
	Peer  peer.ID
	Reply chan error
}

type DenyFriendRequest struct {
	Peer  peer.ID
	Reply chan error
}

type SendDirectMessage struct {
	Peer    peer.ID
	Address multiaddr.Multiaddr
	Content string
	Reply   chan error
}

type Broadcast struct {
	Content string
	Reply   chan error
}

type ConnectToRelay struct {
	Addr  multiaddr.Multiaddr
	Reply chan error
}

type GetFriendList struct{ Reply chan []string }

// InboundFriendRequest pairs a pending request with its originator.
type InboundFriendRequest struct {
	Peer    string
	Request wire.FriendRequest
}

type GetInboundFriendRequests struct{ Reply chan []InboundFriendRequest }

type GetDirectMessages struct {
	Peer  peer.ID
	Reply chan []store.DirectMessage
}

type GetListenAddresses struct{ Reply chan []multiaddr.Multiaddr }

type GetFeed struct{ Reply chan []store.Post }

// GetBoard is the per-peer board query.
type GetBoard struct {
	Peer  peer.ID
	Reply chan []store.Post
}
