package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/zai11/enclave/internal/config"
	"github.com/zai11/enclave/internal/events"
	"github.com/zai11/enclave/internal/identity"
	"github.com/zai11/enclave/internal/logging"
	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/swarm/swarmtest"
	"github.com/zai11/enclave/internal/wire"
)

// node bundles one fully wired node under test: a set of
// independently constructed peers sharing one fake transport.
type node struct {
	loop *Loop
	sw   *swarmtest.Fake
	em   *events.Emitter
	st   *store.Store
	cfg  config.Config
	stop context.CancelFunc
}

func newTestNode(t *testing.T, reg *swarmtest.Registry) *node {
	t.Helper()

	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	cfg := config.Config{PrivateKey: id.PrivateKey, PeerID: id.PeerID, Port: id.Port}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := swarmtest.New(reg, id.PeerID)
	em := events.NewEmitter()
	log := logging.NewDefault()

	loop, err := New(fake, st, em, log, cfg)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := fake.Start(ctx); err != nil {
		t.Fatalf("start fake swarm: %v", err)
	}
	go loop.Run(ctx)

	n := &node{loop: loop, sw: fake, em: em, st: st, cfg: cfg, stop: cancel}
	t.Cleanup(func() {
		cancel()
		fake.Close()
	})
	return n
}

// newNodeFromConfig wires a node around a caller-supplied store and
// config instead of generating fresh ones, so a test can reopen the
// same on-disk store under a second Loop and compare state across the
// two constructions. Unlike newTestNode it does not close st on
// cleanup; the caller owns the store's lifetime.
func newNodeFromConfig(t *testing.T, reg *swarmtest.Registry, st *store.Store, cfg config.Config) *node {
	t.Helper()

	fake := swarmtest.New(reg, cfg.PeerID)
	em := events.NewEmitter()
	log := logging.NewDefault()

	loop, err := New(fake, st, em, log, cfg)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := fake.Start(ctx); err != nil {
		t.Fatalf("start fake swarm: %v", err)
	}
	go loop.Run(ctx)

	n := &node{loop: loop, sw: fake, em: em, st: st, cfg: cfg, stop: cancel}
	t.Cleanup(func() {
		cancel()
		fake.Close()
	})
	return n
}

func waitFor(t *testing.T, ch <-chan events.Event, pred func(events.Event) bool, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for expected event")
			return events.Event{}
		}
	}
}

func mustNoEvent(t *testing.T, ch <-chan events.Event, timeout time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(timeout):
	}
}

// TestFriendHandshakeBothOnline drives a full friend-request handshake
// between two simultaneously-online peers and checks both sides end
// up with a symmetric friend set, the originator's request buffered
// and drained correctly, and no dangling pending-request row.
func TestFriendHandshakeBothOnline(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	b := newTestNode(t, reg)

	bAddr := b.sw.ListenAddrs()[0]

	reply := make(chan error, 1)
	a.loop.Submit(Command{SendFriendRequest: &SendFriendRequest{
		Peer: b.cfg.PeerID, Address: bAddr, Message: "hi", Reply: reply,
	}})
	if err := <-reply; err != nil {
		t.Fatalf("send friend request: %v", err)
	}

	ev := waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindFriendRequestReceived }, time.Second)
	if ev.FriendRequestReceived.From != a.cfg.PeerID.String() {
		t.Fatalf("unexpected requester: %s", ev.FriendRequestReceived.From)
	}
	if ev.FriendRequestReceived.Request.Message != "hi" {
		t.Fatalf("unexpected message: %q", ev.FriendRequestReceived.Request.Message)
	}

	acceptReply := make(chan error, 1)
	b.loop.Submit(Command{AcceptFriendRequest: &AcceptFriendRequest{Peer: a.cfg.PeerID, Reply: acceptReply}})
	if err := <-acceptReply; err != nil {
		t.Fatalf("accept friend request: %v", err)
	}

	waitFor(t, a.em.Events(), func(e events.Event) bool {
		return e.Kind() == events.KindFriendRequestAccepted && e.FriendRequestAccepted.Peer == b.cfg.PeerID.String()
	}, time.Second)

	aFriends := make(chan []string, 1)
	a.loop.Submit(Command{GetFriendList: &GetFriendList{Reply: aFriends}})
	if list := <-aFriends; len(list) != 1 || list[0] != b.cfg.PeerID.String() {
		t.Fatalf("expected A's friend list to contain B, got %v", list)
	}

	bFriends := make(chan []string, 1)
	b.loop.Submit(Command{GetFriendList: &GetFriendList{Reply: bFriends}})
	if list := <-bFriends; len(list) != 1 || list[0] != a.cfg.PeerID.String() {
		t.Fatalf("expected B's friend list to contain A, got %v", list)
	}

	isFriendA, err := a.st.IsFriend(b.cfg.PeerID.String())
	if err != nil || !isFriendA {
		t.Fatalf("expected A's store to have a Friend row for B: %v %v", isFriendA, err)
	}
	isFriendB, err := b.st.IsFriend(a.cfg.PeerID.String())
	if err != nil || !isFriendB {
		t.Fatalf("expected B's store to have a Friend row for A: %v %v", isFriendB, err)
	}

	reqs, err := b.st.ListFriendRequests()
	if err != nil || len(reqs) != 0 {
		t.Fatalf("expected no pending requests on B after accept, got %v %v", reqs, err)
	}
}

// TestDirectMessageWithBuffering sends two direct messages to a
// friend that is currently disconnected and checks they arrive, in
// order, once the connection is re-established and the outbound
// buffer drains.
func TestDirectMessageWithBuffering(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	b := newTestNode(t, reg)

	becomeFriends(t, a, b)

	a.sw.Disconnect(b.cfg.PeerID)
	waitFor(t, a.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindPeerDisconnected }, time.Second)

	bAddr := b.sw.ListenAddrs()[0]

	for _, content := range []string{"hello1", "hello2"} {
		reply := make(chan error, 1)
		a.loop.Submit(Command{SendDirectMessage: &SendDirectMessage{
			Peer: b.cfg.PeerID, Address: bAddr, Content: content, Reply: reply,
		}})
		if err := <-reply; err != nil {
			t.Fatalf("send direct message %q: %v", content, err)
		}
	}

	first := waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindDirectMessageReceived }, time.Second)
	second := waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindDirectMessageReceived }, time.Second)

	if first.DirectMessageReceived.Message.Content != "hello1" {
		t.Fatalf("expected hello1 first, got %q", first.DirectMessageReceived.Message.Content)
	}
	if second.DirectMessageReceived.Message.Content != "hello2" {
		t.Fatalf("expected hello2 second, got %q", second.DirectMessageReceived.Message.Content)
	}

	history, err := b.st.ListDirectMessagesWithPeer(b.cfg.PeerID.String(), a.cfg.PeerID.String())
	if err != nil {
		t.Fatalf("list direct messages: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 persisted messages on B, got %d", len(history))
	}
}

// TestDenyFriendRequest checks that denying an inbound friend request
// notifies the originator, leaves no Friend row on either side, and
// clears the pending request.
func TestDenyFriendRequest(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	b := newTestNode(t, reg)

	bAddr := b.sw.ListenAddrs()[0]
	reply := make(chan error, 1)
	a.loop.Submit(Command{SendFriendRequest: &SendFriendRequest{Peer: b.cfg.PeerID, Address: bAddr, Message: "hi", Reply: reply}})
	<-reply
	waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindFriendRequestReceived }, time.Second)

	denyReply := make(chan error, 1)
	b.loop.Submit(Command{DenyFriendRequest: &DenyFriendRequest{Peer: a.cfg.PeerID, Reply: denyReply}})
	<-denyReply

	waitFor(t, a.em.Events(), func(e events.Event) bool {
		return e.Kind() == events.KindFriendRequestDenied && e.FriendRequestDenied.Peer == b.cfg.PeerID.String()
	}, time.Second)

	isFriendA, _ := a.st.IsFriend(b.cfg.PeerID.String())
	isFriendB, _ := b.st.IsFriend(a.cfg.PeerID.String())
	if isFriendA || isFriendB {
		t.Fatalf("expected no Friend row on either side after deny")
	}

	reqs, err := b.st.ListFriendRequests()
	if err != nil || len(reqs) != 0 {
		t.Fatalf("expected B's pending requests empty after deny, got %v %v", reqs, err)
	}
}

// TestGossipRejectedFromNonFriend checks that a gossiped direct
// message from a peer outside the friend set produces neither an
// event nor a persisted row.
func TestGossipRejectedFromNonFriend(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	c := newTestNode(t, reg) // not a friend of a

	reply := make(chan error, 1)
	c.loop.Submit(Command{Broadcast: &Broadcast{Content: "unsolicited", Reply: reply}})
	if err := <-reply; err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	mustNoEvent(t, a.em.Events(), 300*time.Millisecond)

	history, err := a.st.ListDirectMessagesWithPeer(a.cfg.PeerID.String(), c.cfg.PeerID.String())
	if err != nil {
		t.Fatalf("list direct messages: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no persisted row from a non-friend gossip message, got %d", len(history))
	}
}

// TestSelfDialRejection checks that a SendFriendRequest targeting the
// node's own peer id is rejected outright, with no dial attempted and
// no friend row created.
func TestSelfDialRejection(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)

	reply := make(chan error, 1)
	a.loop.Submit(Command{SendFriendRequest: &SendFriendRequest{
		Peer: a.cfg.PeerID, Address: a.sw.ListenAddrs()[0], Message: "me", Reply: reply,
	}})
	if err := <-reply; err == nil {
		t.Fatalf("expected an error rejecting a self-dial friend request")
	}

	friends, err := a.st.ListFriends()
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(friends) != 0 {
		t.Fatalf("expected no friend row from a self-dial, got %d", len(friends))
	}
}

// TestSendDirectMessageToNonFriendIsSilentNoOp checks that sending a
// direct message to a peer outside the friend set reports success to
// the caller but produces no event and no persisted row.
func TestSendDirectMessageToNonFriendIsSilentNoOp(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	b := newTestNode(t, reg)

	reply := make(chan error, 1)
	a.loop.Submit(Command{SendDirectMessage: &SendDirectMessage{
		Peer: b.cfg.PeerID, Address: b.sw.ListenAddrs()[0], Content: "hi", Reply: reply,
	}})
	if err := <-reply; err != nil {
		t.Fatalf("expected silent success, got error: %v", err)
	}

	mustNoEvent(t, a.em.Events(), 200*time.Millisecond)

	history, err := a.st.ListDirectMessagesWithPeer(a.cfg.PeerID.String(), b.cfg.PeerID.String())
	if err != nil {
		t.Fatalf("list direct messages: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no row persisted, got %d", len(history))
	}
}

// TestAcceptFriendRequestIdempotence checks that accepting the same
// friend request twice in a row leaves at most one Friend row behind.
func TestAcceptFriendRequestIdempotence(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	b := newTestNode(t, reg)

	bAddr := b.sw.ListenAddrs()[0]
	reply := make(chan error, 1)
	a.loop.Submit(Command{SendFriendRequest: &SendFriendRequest{Peer: b.cfg.PeerID, Address: bAddr, Message: "hi", Reply: reply}})
	<-reply
	waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindFriendRequestReceived }, time.Second)

	for i := 0; i < 2; i++ {
		acceptReply := make(chan error, 1)
		b.loop.Submit(Command{AcceptFriendRequest: &AcceptFriendRequest{Peer: a.cfg.PeerID, Reply: acceptReply}})
		<-acceptReply
	}

	friends, err := b.st.ListFriends()
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(friends) != 1 {
		t.Fatalf("expected at most one Friend row after repeated accepts, got %d", len(friends))
	}
}

// becomeFriends drives a full friend-request handshake and blocks
// until both sides have observed FriendRequestAccepted, used as setup
// by later tests.
func becomeFriends(t *testing.T, a, b *node) {
	t.Helper()

	bAddr := b.sw.ListenAddrs()[0]
	reply := make(chan error, 1)
	a.loop.Submit(Command{SendFriendRequest: &SendFriendRequest{Peer: b.cfg.PeerID, Address: bAddr, Message: "hi", Reply: reply}})
	if err := <-reply; err != nil {
		t.Fatalf("send friend request: %v", err)
	}
	waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindFriendRequestReceived }, time.Second)

	acceptReply := make(chan error, 1)
	b.loop.Submit(Command{AcceptFriendRequest: &AcceptFriendRequest{Peer: a.cfg.PeerID, Reply: acceptReply}})
	if err := <-acceptReply; err != nil {
		t.Fatalf("accept friend request: %v", err)
	}
	waitFor(t, a.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindFriendRequestAccepted }, time.Second)
}

// TestIdentityAndFriendsSurviveRestart checks that a node's peer id,
// private key, listen port, and friend list all come back unchanged
// when a fresh Loop is constructed against the same on-disk store
// after the first one shuts down.
func TestIdentityAndFriendsSurviveRestart(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	dbPath := filepath.Join(t.TempDir(), "enclave.db")

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	cfg, err := config.LoadOrCreate(st)
	if err != nil {
		t.Fatalf("load or create config: %v", err)
	}

	reg := swarmtest.NewRegistry()
	a := newNodeFromConfig(t, reg, st, cfg)
	b := newTestNode(t, reg)
	becomeFriends(t, a, b)

	a.stop()
	a.sw.Close()
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	st2, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { st2.Close() })

	cfg2, err := config.LoadOrCreate(st2)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if cfg2.PeerID != cfg.PeerID {
		t.Fatalf("peer id changed across restart: %s -> %s", cfg.PeerID, cfg2.PeerID)
	}
	if !cfg2.PrivateKey.Equals(cfg.PrivateKey) {
		t.Fatalf("private key changed across restart")
	}
	if cfg2.Port != cfg.Port {
		t.Fatalf("listen port changed across restart: %d -> %d", cfg.Port, cfg2.Port)
	}

	reg2 := swarmtest.NewRegistry()
	a2 := newNodeFromConfig(t, reg2, st2, cfg2)

	friendsCh := make(chan []string, 1)
	a2.loop.Submit(Command{GetFriendList: &GetFriendList{Reply: friendsCh}})
	list := <-friendsCh
	if len(list) != 1 || list[0] != b.cfg.PeerID.String() {
		t.Fatalf("expected restarted node's friend list to still contain the old friend, got %v", list)
	}
}

// TestSynchRequestResponseRoundTrip drives a SynchRequest/SynchResponse
// exchange between two friends: B asks A for posts since a point in
// time, A answers with its own posts created since then, and B merges
// the result into its local copy of A's board.
func TestSynchRequestResponseRoundTrip(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	reg := swarmtest.NewRegistry()
	a := newTestNode(t, reg)
	b := newTestNode(t, reg)
	becomeFriends(t, a, b)

	if _, err := a.st.UpsertPeer(a.cfg.PeerID.String(), a.sw.ListenAddrs()[0].String(), 0); err != nil {
		t.Fatalf("seed self peer row: %v", err)
	}
	if _, err := a.st.CreatePost(a.cfg.PeerID.String(), "hello from a", 100); err != nil {
		t.Fatalf("create post: %v", err)
	}

	req := wire.NewSynchRequest(wire.SynchRequest{Since: 0, Sender: b.cfg.PeerID.String()})
	if err := b.sw.SendEnvelope(context.Background(), a.cfg.PeerID, req); err != nil {
		t.Fatalf("send synch request: %v", err)
	}

	ev := waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindPostSynch }, time.Second)
	if ev.PostSynch.Peer != a.cfg.PeerID.String() {
		t.Fatalf("unexpected synch sender: %s", ev.PostSynch.Peer)
	}
	if ev.PostSynch.Created != 1 || ev.PostSynch.Edited != 0 {
		t.Fatalf("expected 1 created and 0 edited posts, got %d/%d", ev.PostSynch.Created, ev.PostSynch.Edited)
	}

	board, err := b.st.ListBoard(a.cfg.PeerID.String())
	if err != nil {
		t.Fatalf("list board: %v", err)
	}
	if len(board) != 1 || board[0].Content != "hello from a" {
		t.Fatalf("expected A's post merged into B's copy of A's board, got %+v", board)
	}

	// Replaying the same request must not duplicate the merged post.
	if err := b.sw.SendEnvelope(context.Background(), a.cfg.PeerID, req); err != nil {
		t.Fatalf("replay synch request: %v", err)
	}
	waitFor(t, b.em.Events(), func(e events.Event) bool { return e.Kind() == events.KindPostSynch }, time.Second)

	board, err = b.st.ListBoard(a.cfg.PeerID.String())
	if err != nil {
		t.Fatalf("list board after replay: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("expected replaying the same synch request to stay idempotent, got %d rows", len(board))
	}
}
