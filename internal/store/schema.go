package store

// schema defines the durable relational store. Migrations are additive
// only: new columns/tables may be appended here but existing ones are
// never dropped or renamed.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS tbl_identity (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	private_key BLOB NOT NULL,
	peer_id     TEXT NOT NULL,
	port        INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tbl_users (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	peer_id     TEXT NOT NULL UNIQUE,
	multiaddr   TEXT NOT NULL DEFAULT '',
	nickname    TEXT,
	is_self     INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_peer_id ON tbl_users(peer_id);

CREATE TABLE IF NOT EXISTS tbl_friend_requests (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	from_user_id INTEGER NOT NULL REFERENCES tbl_users(id),
	message      TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tbl_friends (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL UNIQUE REFERENCES tbl_users(id),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tbl_blocked_users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL UNIQUE REFERENCES tbl_users(id),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tbl_direct_messages (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_peer_id    TEXT NOT NULL,
	recipient_peer_id TEXT NOT NULL,
	content           TEXT NOT NULL,
	created_at        INTEGER NOT NULL,
	edited_at         INTEGER,
	read              INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tbl_posts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	author_user_id  INTEGER NOT NULL REFERENCES tbl_users(id),
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	edited_at       INTEGER
);

CREATE INDEX IF NOT EXISTS idx_posts_author ON tbl_posts(author_user_id);
`
