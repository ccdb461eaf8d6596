package memory

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
)

// Index stores records with their embeddings and answers owner-scoped
// similarity queries.
type Index interface {
	Put(ctx context.Context, rec MemoryRecord) error
	Query(ctx context.Context, text string, k int, ownerID string) ([]MemoryRecord, error)
	All(ctx context.Context, ownerID string) ([]MemoryRecord, error)
}

const (
	metaOwner     = "owner_id"
	metaSource    = "source"
	metaTimestamp = "timestamp"
	metaOriginal  = "original_user_message"
)

// ChromemIndex keeps records in a chromem-go collection.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens the collection in memory, or on disk when cfg names a
// persist path.
func NewChromemIndex(cfg Config, embed chromem.EmbeddingFunc) (*ChromemIndex, error) {
	var db *chromem.DB
	if path := strings.TrimSpace(cfg.PersistPath); path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open memory db at %s: %w", path, err)
		}
	} else {
		db = chromem.NewDB()
	}
	name := strings.TrimSpace(cfg.Collection)
	if name == "" {
		name = DefaultConfig().Collection
	}
	c, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open memory collection %s: %w", name, err)
	}
	return &ChromemIndex{db: db, collection: c}, nil
}

// Put adds the record or replaces the one with the same ID.
func (x *ChromemIndex) Put(ctx context.Context, rec MemoryRecord) error {
	doc := chromem.Document{
		ID:      rec.ID,
		Content: rec.Text,
		Metadata: map[string]string{
			metaOwner:     rec.OwnerID,
			metaSource:    rec.Source,
			metaTimestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
			metaOriginal:  rec.OriginalUserMessage,
		},
	}
	return x.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU())
}

func (x *ChromemIndex) Query(ctx context.Context, text string, k int, ownerID string) ([]MemoryRecord, error) {
	// chromem rejects n larger than the collection
	n := min(k, x.collection.Count())
	if n <= 0 {
		return nil, nil
	}
	res, err := x.collection.Query(ctx, text, n, map[string]string{metaOwner: ownerID}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryRecord, 0, len(res))
	for _, r := range res {
		out = append(out, fromResult(r))
	}
	return out, nil
}

// All returns every record of the owner. The owner id doubles as query text;
// only the metadata filter decides membership.
func (x *ChromemIndex) All(ctx context.Context, ownerID string) ([]MemoryRecord, error) {
	return x.Query(ctx, "memories of "+ownerID, x.collection.Count(), ownerID)
}

func fromResult(r chromem.Result) MemoryRecord {
	rec := MemoryRecord{
		ID:                  r.ID,
		Text:                r.Content,
		OwnerID:             r.Metadata[metaOwner],
		Source:              r.Metadata[metaSource],
		OriginalUserMessage: r.Metadata[metaOriginal],
		Score:               r.Similarity,
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.Metadata[metaTimestamp]); err == nil {
		rec.Timestamp = ts
	}
	return rec
}
