package store

import (
	"database/sql"
	"errors"

	"github.com/zai11/enclave/internal/enclaveerr"
)

// UpsertFriendRequest records an inbound friend request, coalescing
// repeated requests from the same peer into the latest message
// (a second request from the same peer
// before the first is resolved replaces the message rather than
// creating a second row").
func (s *Store) UpsertFriendRequest(fromPeerID, multiaddr, message string, createdAt int64) error {
	defer s.lock()()

	peer, err := s.getPeerByPeerIDLocked(fromPeerID)
	if errors.Is(err, enclaveerr.ErrPeerNotFound) {
		peer, err = s.upsertPeerLocked(fromPeerID, multiaddr, createdAt)
	}
	if err != nil {
		return err
	}

	var existing FriendRequest
	err = s.db.Get(&existing, `SELECT id, from_user_id, message, created_at FROM tbl_friend_requests WHERE from_user_id = ?`, peer.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO tbl_friend_requests (from_user_id, message, created_at) VALUES (?, ?, ?)`, peer.ID, message, createdAt)
		if err != nil {
			return enclaveerr.Store("create_friend_request", err)
		}
		return nil
	case err != nil:
		return enclaveerr.Store("get_friend_request", err)
	default:
		_, err = s.db.Exec(`UPDATE tbl_friend_requests SET message = ?, created_at = ? WHERE id = ?`, message, createdAt, existing.ID)
		if err != nil {
			return enclaveerr.Store("update_friend_request", err)
		}
		return nil
	}
}

// GetFriendRequestByPeer returns the pending friend request from peerID,
// if any.
func (s *Store) GetFriendRequestByPeer(peerID string) (FriendRequest, error) {
	defer s.lock()()

	var fr FriendRequest
	err := s.db.Get(&fr, `
		SELECT r.id, r.from_user_id, r.message, r.created_at, u.peer_id AS from_peer_id, u.multiaddr AS from_multiaddr
		FROM tbl_friend_requests r
		JOIN tbl_users u ON u.id = r.from_user_id
		WHERE u.peer_id = ?`, peerID)
	if errors.Is(err, sql.ErrNoRows) {
		return FriendRequest{}, enclaveerr.New(enclaveerr.KindStore, "get_friend_request_by_peer", sql.ErrNoRows)
	}
	if err != nil {
		return FriendRequest{}, enclaveerr.Store("get_friend_request_by_peer", err)
	}
	return fr, nil
}

// ListFriendRequests returns every pending friend request joined
// against the originating peer's identifier and multiaddr.
func (s *Store) ListFriendRequests() ([]FriendRequest, error) {
	defer s.lock()()

	var rows []FriendRequest
	err := s.db.Select(&rows, `
		SELECT r.id, r.from_user_id, r.message, r.created_at, u.peer_id AS from_peer_id, u.multiaddr AS from_multiaddr
		FROM tbl_friend_requests r
		JOIN tbl_users u ON u.id = r.from_user_id
		ORDER BY r.created_at ASC`)
	if err != nil {
		return nil, enclaveerr.Store("list_friend_requests", err)
	}
	return rows, nil
}

// DeleteFriendRequestByPeer removes the pending request from peerID,
// called once it has been accepted or denied.
func (s *Store) DeleteFriendRequestByPeer(peerID string) error {
	defer s.lock()()

	_, err := s.db.Exec(`
		DELETE FROM tbl_friend_requests WHERE from_user_id = (
			SELECT id FROM tbl_users WHERE peer_id = ?
		)`, peerID)
	if err != nil {
		return enclaveerr.Store("delete_friend_request", err)
	}
	return nil
}

// upsertPeerLocked is UpsertPeer's body without re-acquiring the mutex,
// for use by callers that already hold it.
func (s *Store) upsertPeerLocked(peerID, multiaddr string, createdAt int64) (Peer, error) {
	existing, err := s.getPeerByPeerIDLocked(peerID)
	if err == nil {
		if multiaddr != "" && multiaddr != existing.Multiaddr {
			if _, err := s.db.Exec(`UPDATE tbl_users SET multiaddr = ? WHERE id = ?`, multiaddr, existing.ID); err != nil {
				return Peer{}, enclaveerr.Store("update_peer_address", err)
			}
			existing.Multiaddr = multiaddr
		}
		return existing, nil
	}
	if !errors.Is(err, enclaveerr.ErrPeerNotFound) {
		return Peer{}, err
	}

	res, err := s.db.Exec(
		`INSERT INTO tbl_users (peer_id, multiaddr, is_self, created_at) VALUES (?, ?, 0, ?)`,
		peerID, multiaddr, createdAt,
	)
	if err != nil {
		return Peer{}, enclaveerr.Store("create_peer", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Peer{}, enclaveerr.Store("create_peer_id", err)
	}
	return Peer{ID: id, PeerID: peerID, Multiaddr: multiaddr, CreatedAt: createdAt}, nil
}
