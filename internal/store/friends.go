package store

import (
	"github.com/zai11/enclave/internal/enclaveerr"
)

// CreateFriend promotes peerID to a friendship, called when a friend
// request is accepted locally or the remote side accepts ours

func (s *Store) CreateFriend(peerID string, createdAt int64) error {
	defer s.lock()()

	peer, err := s.getPeerByPeerIDLocked(peerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR IGNORE INTO tbl_friends (user_id, created_at) VALUES (?, ?)`, peer.ID, createdAt)
	if err != nil {
		return enclaveerr.Store("create_friend", err)
	}
	return nil
}

// IsFriend reports whether peerID is an accepted friend
// invariant 2: "A DirectMessage can only be sent to/from a peer that
// is currently a Friend").
func (s *Store) IsFriend(peerID string) (bool, error) {
	defer s.lock()()

	var count int
	err := s.db.Get(&count, `
		SELECT COUNT(*) FROM tbl_friends f
		JOIN tbl_users u ON u.id = f.user_id
		WHERE u.peer_id = ?`, peerID)
	if err != nil {
		return false, enclaveerr.Store("is_friend", err)
	}
	return count > 0, nil
}

// ListFriends returns every current friend, joined against tbl_users
// for the peer identifier, multiaddr and nickname.
func (s *Store) ListFriends() ([]Peer, error) {
	defer s.lock()()

	var peers []Peer
	err := s.db.Select(&peers, `
		SELECT u.id, u.peer_id, u.multiaddr, u.nickname, u.is_self, u.created_at
		FROM tbl_users u
		JOIN tbl_friends f ON f.user_id = u.id
		ORDER BY f.created_at ASC`)
	if err != nil {
		return nil, enclaveerr.Store("list_friends", err)
	}
	return peers, nil
}

// DeleteFriend removes a friendship, leaving the underlying Peer row
// intact (unfriending does not forget message history).
func (s *Store) DeleteFriend(peerID string) error {
	defer s.lock()()

	_, err := s.db.Exec(`
		DELETE FROM tbl_friends WHERE user_id = (
			SELECT id FROM tbl_users WHERE peer_id = ?
		)`, peerID)
	if err != nil {
		return enclaveerr.Store("delete_friend", err)
	}
	return nil
}
