// Package events defines the upstream event surface published by the
// engine's event loop and the unbounded emitter channel it is
// delivered through.
package events

import (
	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/wire"
)

// Kind names an event variant for logging and for switch dispatch by
// consumers that prefer a type tag over a type switch on Event itself.
type Kind string

const (
	KindPeerConnected            Kind = "PeerConnected"
	KindPeerDisconnected         Kind = "PeerDisconnected"
	KindDirectMessageReceived    Kind = "DirectMessageReceived"
	KindDirectMessageSent        Kind = "DirectMessageSent"
	KindFriendRequestReceived    Kind = "FriendRequestReceived"
	KindFriendRequestAccepted    Kind = "FriendRequestAccepted"
	KindFriendRequestDenied      Kind = "FriendRequestDenied"
	KindPostReceived             Kind = "PostReceived"
	KindPostSynch                Kind = "PostSynch"
	KindError                    Kind = "Error"
)

// PeerConnected fires on ConnectionEstablished.
type PeerConnected struct{ Peer string }

// PeerDisconnected fires on ConnectionClosed.
type PeerDisconnected struct{ Peer string }

// DirectMessageReceived fires for both the request/response and
// gossip inbound paths.
type DirectMessageReceived struct{ Message store.DirectMessage }

// DirectMessageSent fires after SendDirectMessage persists a message.
// Broadcast does not emit it.
type DirectMessageSent struct{ Message store.DirectMessage }

// FriendRequestReceived fires for an inbound FriendRequest.
type FriendRequestReceived struct {
	From    string
	Request wire.FriendRequest
}

// FriendRequestAccepted fires when a previously sent friend request
// is accepted by its recipient.
type FriendRequestAccepted struct{ Peer string }

// FriendRequestDenied fires when a previously sent friend request is
// denied by its recipient.
type FriendRequestDenied struct{ Peer string }

// PostReceived carries a single post. The engine's sync path reports
// merges through PostSynch and does not publish PostReceived.
type PostReceived struct{ Post store.Post }

// PostSynch fires once a SynchResponse has been fully merged into the
// local store.
type PostSynch struct {
	Peer    string
	Created int
	Edited  int
}

// Error reports a failure the loop absorbed rather than dying from.
type Error struct {
	Context string
	Err     error
}

// Event is the tagged union delivered on the emitter channel. Exactly
// one field is populated; Kind() names which.
type Event struct {
	PeerConnected         *PeerConnected
	PeerDisconnected      *PeerDisconnected
	DirectMessageReceived *DirectMessageReceived
	DirectMessageSent     *DirectMessageSent
	FriendRequestReceived *FriendRequestReceived
	FriendRequestAccepted *FriendRequestAccepted
	FriendRequestDenied   *FriendRequestDenied
	PostReceived          *PostReceived
	PostSynch             *PostSynch
	Error                 *Error
}

// Kind reports which variant of ev is populated, "" if none are.
func (ev Event) Kind() Kind {
	switch {
	case ev.PeerConnected != nil:
		return KindPeerConnected
	case ev.PeerDisconnected != nil:
		return KindPeerDisconnected
	case ev.DirectMessageReceived != nil:
		return KindDirectMessageReceived
	case ev.DirectMessageSent != nil:
		return KindDirectMessageSent
	case ev.FriendRequestReceived != nil:
		return KindFriendRequestReceived
	case ev.FriendRequestAccepted != nil:
		return KindFriendRequestAccepted
	case ev.FriendRequestDenied != nil:
		return KindFriendRequestDenied
	case ev.PostReceived != nil:
		return KindPostReceived
	case ev.PostSynch != nil:
		return KindPostSynch
	case ev.Error != nil:
		return KindError
	default:
		return ""
	}
}

func NewPeerConnected(peer string) Event    { return Event{PeerConnected: &PeerConnected{Peer: peer}} }
func NewPeerDisconnected(peer string) Event { return Event{PeerDisconnected: &PeerDisconnected{Peer: peer}} }
func NewDirectMessageReceived(m store.DirectMessage) Event {
	return Event{DirectMessageReceived: &DirectMessageReceived{Message: m}}
}
func NewDirectMessageSent(m store.DirectMessage) Event {
	return Event{DirectMessageSent: &DirectMessageSent{Message: m}}
}
func NewFriendRequestReceived(from string, req wire.FriendRequest) Event {
	return Event{FriendRequestReceived: &FriendRequestReceived{From: from, Request: req}}
}
func NewFriendRequestAccepted(peer string) Event {
	return Event{FriendRequestAccepted: &FriendRequestAccepted{Peer: peer}}
}
func NewFriendRequestDenied(peer string) Event {
	return Event{FriendRequestDenied: &FriendRequestDenied{Peer: peer}}
}
func NewPostReceived(p store.Post) Event { return Event{PostReceived: &PostReceived{Post: p}} }
func NewPostSynch(peer string, created, edited int) Event {
	return Event{PostSynch: &PostSynch{Peer: peer, Created: created, Edited: edited}}
}
func NewError(context string, err error) Event { return Event{Error: &Error{Context: context, Err: err}} }
