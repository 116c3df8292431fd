package store

import (
	"github.com/zai11/enclave/internal/enclaveerr"
)

// CreateDirectMessage records a sent or received message.
// senderPeerID/recipientPeerID are stored verbatim as peer-identifier
// strings rather than joined through tbl_users, since a message's
// endpoints are addressed by identifier directly rather than by
// foreign key.
func (s *Store) CreateDirectMessage(senderPeerID, recipientPeerID, content string, createdAt int64) (DirectMessage, error) {
	defer s.lock()()

	res, err := s.db.Exec(
		`INSERT INTO tbl_direct_messages (sender_peer_id, recipient_peer_id, content, created_at) VALUES (?, ?, ?, ?)`,
		senderPeerID, recipientPeerID, content, createdAt,
	)
	if err != nil {
		return DirectMessage{}, enclaveerr.Store("create_direct_message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return DirectMessage{}, enclaveerr.Store("create_direct_message_id", err)
	}
	return DirectMessage{
		ID:              id,
		SenderPeerID:    senderPeerID,
		RecipientPeerID: recipientPeerID,
		Content:         content,
		CreatedAt:       createdAt,
	}, nil
}

// ListDirectMessagesWithPeer returns the full conversation history
// with peerID, in either direction, oldest first.
func (s *Store) ListDirectMessagesWithPeer(selfPeerID, otherPeerID string) ([]DirectMessage, error) {
	defer s.lock()()

	var msgs []DirectMessage
	err := s.db.Select(&msgs, `
		SELECT id, sender_peer_id, recipient_peer_id, content, created_at, edited_at, read
		FROM tbl_direct_messages
		WHERE (sender_peer_id = ? AND recipient_peer_id = ?)
		   OR (sender_peer_id = ? AND recipient_peer_id = ?)
		ORDER BY created_at ASC`,
		selfPeerID, otherPeerID, otherPeerID, selfPeerID,
	)
	if err != nil {
		return nil, enclaveerr.Store("list_direct_messages", err)
	}
	return msgs, nil
}

// EditDirectMessage updates the content of a previously sent message
// and stamps edited_at.
func (s *Store) EditDirectMessage(id int64, content string, editedAt int64) error {
	defer s.lock()()

	_, err := s.db.Exec(`UPDATE tbl_direct_messages SET content = ?, edited_at = ? WHERE id = ?`, content, editedAt, id)
	if err != nil {
		return enclaveerr.Store("edit_direct_message", err)
	}
	return nil
}

// MarkDirectMessageRead flags an inbound message as read.
func (s *Store) MarkDirectMessageRead(id int64) error {
	defer s.lock()()

	_, err := s.db.Exec(`UPDATE tbl_direct_messages SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return enclaveerr.Store("mark_direct_message_read", err)
	}
	return nil
}
