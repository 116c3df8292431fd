package store

import (
	"errors"
	"testing"

	"github.com/zai11/enclave/internal/enclaveerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIdentityRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetIdentity(); !errors.Is(err, enclaveerr.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound before creation, got %v", err)
	}

	if err := s.CreateIdentity([]byte("priv-key"), "peer-self", 49200, 1000); err != nil {
		t.Fatalf("create identity: %v", err)
	}

	row, err := s.GetIdentity()
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if row.PeerID != "peer-self" || row.Port != 49200 {
		t.Fatalf("unexpected identity row: %+v", row)
	}

	if err := s.UpdateIdentityPort(50000); err != nil {
		t.Fatalf("update port: %v", err)
	}
	row, err = s.GetIdentity()
	if err != nil {
		t.Fatalf("get identity after update: %v", err)
	}
	if row.Port != 50000 {
		t.Fatalf("port not updated, got %d", row.Port)
	}
}

func TestUpsertPeerCreatesThenUpdatesAddress(t *testing.T) {
	s := openTestStore(t)

	p1, err := s.UpsertPeer("peer-a", "/ip4/1.2.3.4/tcp/4001", 10)
	if err != nil {
		t.Fatalf("create peer: %v", err)
	}
	if p1.ID == 0 {
		t.Fatalf("expected non-zero id")
	}

	p2, err := s.UpsertPeer("peer-a", "/ip4/5.6.7.8/tcp/4001", 20)
	if err != nil {
		t.Fatalf("update peer: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("expected same row id across upserts, got %d and %d", p1.ID, p2.ID)
	}
	if p2.Multiaddr != "/ip4/5.6.7.8/tcp/4001" {
		t.Fatalf("expected address to be updated, got %q", p2.Multiaddr)
	}
}

func TestFriendRequestCoalescesLatestMessage(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFriendRequest("peer-b", "/ip4/1.2.3.4/tcp/4001", "hi", 1); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := s.UpsertFriendRequest("peer-b", "/ip4/1.2.3.4/tcp/4001", "hi again", 2); err != nil {
		t.Fatalf("second request: %v", err)
	}

	reqs, err := s.ListFriendRequests()
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected exactly one coalesced row, got %d", len(reqs))
	}
	if reqs[0].Message != "hi again" {
		t.Fatalf("expected latest message to win, got %q", reqs[0].Message)
	}
}

func TestFriendAndBlockedMutualExclusion(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.UpsertPeer("peer-c", "", 1); err != nil {
		t.Fatalf("upsert peer: %v", err)
	}
	if err := s.CreateFriend("peer-c", 2); err != nil {
		t.Fatalf("create friend: %v", err)
	}

	isFriend, err := s.IsFriend("peer-c")
	if err != nil {
		t.Fatalf("is friend: %v", err)
	}
	if !isFriend {
		t.Fatalf("expected peer-c to be a friend")
	}

	if err := s.DeleteFriend("peer-c"); err != nil {
		t.Fatalf("delete friend: %v", err)
	}
	if err := s.BlockPeer("peer-c", 3); err != nil {
		t.Fatalf("block peer: %v", err)
	}

	blocked, err := s.IsBlocked("peer-c")
	if err != nil {
		t.Fatalf("is blocked: %v", err)
	}
	if !blocked {
		t.Fatalf("expected peer-c to be blocked")
	}

	isFriend, err = s.IsFriend("peer-c")
	if err != nil {
		t.Fatalf("is friend after block: %v", err)
	}
	if isFriend {
		t.Fatalf("peer-c must not be both friend and blocked")
	}
}

func TestDirectMessageRoundTripAndEdit(t *testing.T) {
	s := openTestStore(t)

	msg, err := s.CreateDirectMessage("peer-self", "peer-d", "hello", 100)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	if err := s.EditDirectMessage(msg.ID, "hello, edited", 150); err != nil {
		t.Fatalf("edit message: %v", err)
	}

	history, err := s.ListDirectMessagesWithPeer("peer-self", "peer-d")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one message in history, got %d", len(history))
	}
	if history[0].Content != "hello, edited" || history[0].EditedAt == nil {
		t.Fatalf("expected edit to be applied, got %+v", history[0])
	}
}

func TestFeedIncludesOnlyFriendsPosts(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.UpsertPeer("peer-friend", "", 1); err != nil {
		t.Fatalf("upsert friend: %v", err)
	}
	if err := s.CreateFriend("peer-friend", 1); err != nil {
		t.Fatalf("create friend: %v", err)
	}
	if _, err := s.UpsertPeer("peer-stranger", "", 1); err != nil {
		t.Fatalf("upsert stranger: %v", err)
	}

	if _, err := s.CreatePost("peer-friend", "friend post", 10); err != nil {
		t.Fatalf("create friend post: %v", err)
	}
	if _, err := s.CreatePost("peer-stranger", "stranger post", 20); err != nil {
		t.Fatalf("create stranger post: %v", err)
	}

	feed, err := s.ListFeed()
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	if len(feed) != 1 || feed[0].AuthorPeerID != "peer-friend" {
		t.Fatalf("expected feed to contain only the friend's post, got %+v", feed)
	}

	board, err := s.ListBoard("peer-stranger")
	if err != nil {
		t.Fatalf("list board: %v", err)
	}
	if len(board) != 1 || board[0].Content != "stranger post" {
		t.Fatalf("expected board to contain the stranger's own post, got %+v", board)
	}
}

func TestUpsertPostsFromSyncDeduplicatesCreated(t *testing.T) {
	s := openTestStore(t)

	created := []Post{{Content: "first", CreatedAt: 5}}
	if err := s.UpsertPostsFromSync("peer-e", created, false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := s.UpsertPostsFromSync("peer-e", created, false); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	board, err := s.ListBoard("peer-e")
	if err != nil {
		t.Fatalf("list board: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("expected sync to be idempotent, got %d posts", len(board))
	}
}
