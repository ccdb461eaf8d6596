package memory

import (
	"sort"
	"time"
)

const SourceConversation = "conversation"

// MemoryRecord is one long-term fact about an owner. Score is set only on
// retrieval.
type MemoryRecord struct {
	ID                  string    `json:"id"`
	Text                string    `json:"text"`
	Timestamp           time.Time `json:"timestamp"`
	Source              string    `json:"source"`
	OwnerID             string    `json:"owner_id"`
	OriginalUserMessage string    `json:"original_user_message,omitempty"`
	Score               float32   `json:"score,omitempty"`
}

// rank orders by descending score, then ascending ID.
func rank(recs []MemoryRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ID < recs[j].ID
	})
}

func sortNewestFirst(recs []MemoryRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		}
		return recs[i].ID < recs[j].ID
	})
}
