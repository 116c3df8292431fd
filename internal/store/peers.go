package store

import (
	"database/sql"
	"errors"

	"github.com/zai11/enclave/internal/enclaveerr"
)

// GetPeerByPeerID looks up a Peer row by its textual peer identifier.
func (s *Store) GetPeerByPeerID(peerID string) (Peer, error) {
	defer s.lock()()
	return s.getPeerByPeerIDLocked(peerID)
}

func (s *Store) getPeerByPeerIDLocked(peerID string) (Peer, error) {
	var p Peer
	err := s.db.Get(&p, `SELECT id, peer_id, multiaddr, nickname, is_self, created_at FROM tbl_users WHERE peer_id = ?`, peerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Peer{}, enclaveerr.ErrPeerNotFound
	}
	if err != nil {
		return Peer{}, enclaveerr.Store("get_peer_by_peer_id", err)
	}
	return p, nil
}

// GetPeerByID looks up a Peer row by its row id.
func (s *Store) GetPeerByID(id int64) (Peer, error) {
	defer s.lock()()

	var p Peer
	err := s.db.Get(&p, `SELECT id, peer_id, multiaddr, nickname, is_self, created_at FROM tbl_users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Peer{}, enclaveerr.ErrPeerNotFound
	}
	if err != nil {
		return Peer{}, enclaveerr.Store("get_peer_by_id", err)
	}
	return p, nil
}

// UpsertPeer creates a Peer row for peerID if one does not exist, or
// updates its known address otherwise (created on
// first connection or on first appearance in an inbound protocol
// message; mutated to update the address or nickname").
func (s *Store) UpsertPeer(peerID, multiaddr string, createdAt int64) (Peer, error) {
	defer s.lock()()
	return s.upsertPeerLocked(peerID, multiaddr, createdAt)
}

// SetNickname updates the nickname for a known peer.
func (s *Store) SetNickname(peerID, nickname string) error {
	defer s.lock()()

	_, err := s.db.Exec(`UPDATE tbl_users SET nickname = ? WHERE peer_id = ?`, nickname, peerID)
	if err != nil {
		return enclaveerr.Store("set_nickname", err)
	}
	return nil
}

// DeletePeer removes a Peer row by its textual peer identifier.
func (s *Store) DeletePeer(peerID string) error {
	defer s.lock()()

	_, err := s.db.Exec(`DELETE FROM tbl_users WHERE peer_id = ?`, peerID)
	if err != nil {
		return enclaveerr.Store("delete_peer", err)
	}
	return nil
}

// BlockPeer inserts a BlockedUser row for the given peer
// "BlockedUser").
func (s *Store) BlockPeer(peerID string, createdAt int64) error {
	defer s.lock()()

	peer, err := s.getPeerByPeerIDLocked(peerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR IGNORE INTO tbl_blocked_users (user_id, created_at) VALUES (?, ?)`, peer.ID, createdAt)
	if err != nil {
		return enclaveerr.Store("block_peer", err)
	}
	return nil
}

// UnblockPeer removes a BlockedUser row for the given peer.
func (s *Store) UnblockPeer(peerID string) error {
	defer s.lock()()

	peer, err := s.getPeerByPeerIDLocked(peerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM tbl_blocked_users WHERE user_id = ?`, peer.ID)
	if err != nil {
		return enclaveerr.Store("unblock_peer", err)
	}
	return nil
}

// IsBlocked reports whether peerID is currently blocked
// invariant 3: "No peer is simultaneously in Friend and BlockedUser").
func (s *Store) IsBlocked(peerID string) (bool, error) {
	defer s.lock()()

	var count int
	err := s.db.Get(&count, `
		SELECT COUNT(*) FROM tbl_blocked_users b
		JOIN tbl_users u ON u.id = b.user_id
		WHERE u.peer_id = ?`, peerID)
	if err != nil {
		return false, enclaveerr.Store("is_blocked", err)
	}
	return count > 0, nil
}
