package store

// Row types mirror the durable schema one-to-one, one struct per
// table.

// IdentityRow is the singleton identity row.
type IdentityRow struct {
	ID         int64  `db:"id"`
	PrivateKey []byte `db:"private_key"`
	PeerID     string `db:"peer_id"`
	Port       int    `db:"port"`
	CreatedAt  int64  `db:"created_at"`
}

// Peer is the "user" entity.
type Peer struct {
	ID        int64   `db:"id"`
	PeerID    string  `db:"peer_id"`
	Multiaddr string  `db:"multiaddr"`
	Nickname  *string `db:"nickname"`
	IsSelf    bool    `db:"is_self"`
	CreatedAt int64   `db:"created_at"`
}

// FriendRequest is an inbound pending request.
type FriendRequest struct {
	ID         int64  `db:"id"`
	FromUserID int64  `db:"from_user_id"`
	Message    string `db:"message"`
	CreatedAt  int64  `db:"created_at"`
	// FromPeerID and FromMultiaddr are populated by joins against
	// tbl_users; not physical columns on tbl_friend_requests.
	FromPeerID    string `db:"from_peer_id"`
	FromMultiaddr string `db:"from_multiaddr"`
}

// Friend is an accepted friendship.
type Friend struct {
	ID        int64 `db:"id"`
	UserID    int64 `db:"user_id"`
	CreatedAt int64 `db:"created_at"`
}

// BlockedUser marks a peer as blocked.
type BlockedUser struct {
	ID        int64 `db:"id"`
	UserID    int64 `db:"user_id"`
	CreatedAt int64 `db:"created_at"`
}

// DirectMessage is a sent or received end-to-end message.
type DirectMessage struct {
	ID              int64  `db:"id"`
	SenderPeerID    string `db:"sender_peer_id"`
	RecipientPeerID string `db:"recipient_peer_id"`
	Content         string `db:"content"`
	CreatedAt       int64  `db:"created_at"`
	EditedAt        *int64 `db:"edited_at"`
	Read            bool   `db:"read"`
}

// Post is a broadcast post, local or synced from a friend.
type Post struct {
	ID            int64  `db:"id"`
	AuthorUserID  int64  `db:"author_user_id"`
	Content       string `db:"content"`
	CreatedAt     int64  `db:"created_at"`
	EditedAt      *int64 `db:"edited_at"`
	AuthorPeerID  string `db:"author_peer_id"`
}
