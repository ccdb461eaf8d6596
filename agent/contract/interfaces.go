package contract

import (
	"context"

	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

// Agent is one pipeline node's unit of work. It mutates the shared state in
// place by appending exactly one message and one result to its own slot.
type Agent interface {
	Invoke(ctx context.Context, st *statex.SharedState) error
}

// MemoryWriter persists facts with near-duplicate detection.
type MemoryWriter interface {
	Upsert(ctx context.Context, in MemoryInput) (MemoryWriteResult, error)
}

// MemorySearcher retrieves facts ranked by descending similarity.
type MemorySearcher interface {
	Search(ctx context.Context, query string, k int, ownerID string) ([]MemoryHit, error)
}

type MemoryInput struct {
	Text                string
	OwnerID             string
	Source              string
	OriginalUserMessage string
}

type MemoryWriteResult struct {
	ID      string
	Updated bool
}

type MemoryHit struct {
	ID    string
	Text  string
	Score float32
}
