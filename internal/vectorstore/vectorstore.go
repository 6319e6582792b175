// Package vectorstore is the client side of the hosted vector database.
// Similarity search and ranking happen on the server.
package vectorstore

import "context"

// Record is one embedded chunk scoped to a user.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Payload struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Text       string `json:"text"`
	Source     string `json:"source,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// Match is a query hit, in the order returned by the server.
type Match struct {
	ID      string
	Score   float32
	Payload Payload
}

type Store interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, userID string) ([]Match, error)
}
