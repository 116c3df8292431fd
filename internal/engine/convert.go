package engine

import (
	"encoding/json"

	"github.com/zai11/enclave/internal/store"
	"github.com/zai11/enclave/internal/wire"
)

// marshalDirectMessage JSON-encodes a DirectMessage for the gossip
// path.
func marshalDirectMessage(msg wire.DirectMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// toWirePosts/fromWirePosts translate between the durable Post row
// (keyed by an internal author_user_id foreign key) and the wire Post
// (keyed by the author's peer-identifier string).
func toWirePosts(posts []store.Post) []wire.Post {
	out := make([]wire.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, wire.Post{
			ID:        p.ID,
			Author:    p.AuthorPeerID,
			Content:   p.Content,
			CreatedAt: p.CreatedAt,
			EditedAt:  p.EditedAt,
		})
	}
	return out
}

func fromWirePosts(posts []wire.Post) []store.Post {
	out := make([]store.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, store.Post{
			ID:           p.ID,
			AuthorPeerID: p.Author,
			Content:      p.Content,
			CreatedAt:    p.CreatedAt,
			EditedAt:     p.EditedAt,
		})
	}
	return out
}
