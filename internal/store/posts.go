package store

import (
	"github.com/zai11/enclave/internal/enclaveerr"
)

// CreatePost records a locally authored post.
func (s *Store) CreatePost(authorPeerID, content string, createdAt int64) (Post, error) {
	defer s.lock()()

	peer, err := s.getPeerByPeerIDLocked(authorPeerID)
	if err != nil {
		return Post{}, err
	}
	res, err := s.db.Exec(`INSERT INTO tbl_posts (author_user_id, content, created_at) VALUES (?, ?, ?)`, peer.ID, content, createdAt)
	if err != nil {
		return Post{}, enclaveerr.Store("create_post", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Post{}, enclaveerr.Store("create_post_id", err)
	}
	return Post{ID: id, AuthorUserID: peer.ID, Content: content, CreatedAt: createdAt, AuthorPeerID: authorPeerID}, nil
}

// EditPost updates the content of a post authored locally.
func (s *Store) EditPost(id int64, content string, editedAt int64) error {
	defer s.lock()()

	_, err := s.db.Exec(`UPDATE tbl_posts SET content = ?, edited_at = ? WHERE id = ?`, content, editedAt, id)
	if err != nil {
		return enclaveerr.Store("edit_post", err)
	}
	return nil
}

// ListPostsSince returns every post by authorPeerID (self, when
// answering a synch request for our own feed) created or edited at or
// after since (inclusive), used to build a SynchResponse.
func (s *Store) ListPostsSince(authorPeerID string, since int64) (created []Post, edited []Post, err error) {
	defer s.lock()()

	err = s.db.Select(&created, `
		SELECT p.id, p.author_user_id, p.content, p.created_at, p.edited_at, u.peer_id AS author_peer_id
		FROM tbl_posts p
		JOIN tbl_users u ON u.id = p.author_user_id
		WHERE u.peer_id = ? AND p.created_at >= ?
		ORDER BY p.created_at ASC`, authorPeerID, since)
	if err != nil {
		return nil, nil, enclaveerr.Store("list_posts_since_created", err)
	}

	err = s.db.Select(&edited, `
		SELECT p.id, p.author_user_id, p.content, p.created_at, p.edited_at, u.peer_id AS author_peer_id
		FROM tbl_posts p
		JOIN tbl_users u ON u.id = p.author_user_id
		WHERE u.peer_id = ? AND p.edited_at IS NOT NULL AND p.edited_at >= ?
		ORDER BY p.edited_at ASC`, authorPeerID, since)
	if err != nil {
		return nil, nil, enclaveerr.Store("list_posts_since_edited", err)
	}
	return created, edited, nil
}

// UpsertPostsFromSync merges a friend's SynchResponse into the local
// store: a created post is inserted unless that author already has a
// post with the same created_at; an edited post overwrites content and
// edited_at of the author's post with the same created_at. Posts are
// matched by creation timestamp, not by the remote row id, so two
// posts by one author with the same created_at are stored as one.
func (s *Store) UpsertPostsFromSync(authorPeerID string, posts []Post, isEdit bool) error {
	defer s.lock()()

	peer, err := s.upsertPeerLocked(authorPeerID, "", 0)
	if err != nil {
		return err
	}

	for _, p := range posts {
		if isEdit {
			_, err = s.db.Exec(`
				UPDATE tbl_posts SET content = ?, edited_at = ?
				WHERE author_user_id = ? AND created_at = ?`,
				p.Content, p.EditedAt, peer.ID, p.CreatedAt)
			if err != nil {
				return enclaveerr.Store("sync_edit_post", err)
			}
			continue
		}

		var count int
		if err := s.db.Get(&count, `
			SELECT COUNT(*) FROM tbl_posts WHERE author_user_id = ? AND created_at = ?`,
			peer.ID, p.CreatedAt); err != nil {
			return enclaveerr.Store("sync_check_post", err)
		}
		if count > 0 {
			continue
		}
		_, err = s.db.Exec(`INSERT INTO tbl_posts (author_user_id, content, created_at, edited_at) VALUES (?, ?, ?, ?)`,
			peer.ID, p.Content, p.CreatedAt, p.EditedAt)
		if err != nil {
			return enclaveerr.Store("sync_create_post", err)
		}
	}
	return nil
}

// ListFeed returns every post authored by a current friend, newest
// first.
func (s *Store) ListFeed() ([]Post, error) {
	defer s.lock()()

	var posts []Post
	err := s.db.Select(&posts, `
		SELECT p.id, p.author_user_id, p.content, p.created_at, p.edited_at, u.peer_id AS author_peer_id
		FROM tbl_posts p
		JOIN tbl_users u ON u.id = p.author_user_id
		JOIN tbl_friends f ON f.user_id = u.id
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, enclaveerr.Store("list_feed", err)
	}
	return posts, nil
}

// ListBoard returns every post authored by a single peer, newest
// first.
func (s *Store) ListBoard(authorPeerID string) ([]Post, error) {
	defer s.lock()()

	var posts []Post
	err := s.db.Select(&posts, `
		SELECT p.id, p.author_user_id, p.content, p.created_at, p.edited_at, u.peer_id AS author_peer_id
		FROM tbl_posts p
		JOIN tbl_users u ON u.id = p.author_user_id
		WHERE u.peer_id = ?
		ORDER BY p.created_at DESC`, authorPeerID)
	if err != nil {
		return nil, enclaveerr.Store("list_board", err)
	}
	return posts, nil
}
