package store

import (
	"database/sql"
	"errors"

	"github.com/zai11/enclave/internal/enclaveerr"
)

// GetIdentity returns the singleton identity row, or ErrIdentityNotFound
// if the node has never started successfully.
func (s *Store) GetIdentity() (IdentityRow, error) {
	defer s.lock()()

	var row IdentityRow
	err := s.db.Get(&row, `SELECT id, private_key, peer_id, port, created_at FROM tbl_identity WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return IdentityRow{}, enclaveerr.ErrIdentityNotFound
	}
	if err != nil {
		return IdentityRow{}, enclaveerr.Store("get_identity", err)
	}
	return row, nil
}

// CreateIdentity inserts the singleton identity row. Called at most
// once per node lifetime; a second call fails on the primary key,
// since the `id = 1` check allows only that one row and it already
// exists.
func (s *Store) CreateIdentity(privateKey []byte, peerID string, port int, createdAt int64) error {
	defer s.lock()()

	_, err := s.db.Exec(
		`INSERT INTO tbl_identity (id, private_key, peer_id, port, created_at) VALUES (1, ?, ?, ?, ?)`,
		privateKey, peerID, port, createdAt,
	)
	if err != nil {
		return enclaveerr.Store("create_identity", err)
	}
	return nil
}

// UpdateIdentityPort persists a newly OS-assigned port after a bind
// conflict on the originally chosen one.
func (s *Store) UpdateIdentityPort(port int) error {
	defer s.lock()()

	_, err := s.db.Exec(`UPDATE tbl_identity SET port = ? WHERE id = 1`, port)
	if err != nil {
		return enclaveerr.Store("update_identity_port", err)
	}
	return nil
}
