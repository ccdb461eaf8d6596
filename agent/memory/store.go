package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
)

// Store is the long-term memory of the concierge. Writes for one owner are
// serialized so find-then-write never races with itself.
type Store struct {
	index     Index
	threshold float32
	topK      int
	now       func() time.Time
	newID     func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var (
	_ contractx.MemoryWriter   = (*Store)(nil)
	_ contractx.MemorySearcher = (*Store)(nil)
)

func NewStore(index Index, cfg Config) (*Store, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: memory index is nil", contractx.ErrValidation)
	}
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	return &Store{
		index:     index,
		threshold: cfg.SimilarityThreshold,
		topK:      cfg.TopK,
		now:       time.Now,
		newID:     uuid.NewString,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) TopK() int {
	return s.topK
}

func (s *Store) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ownerID] = l
	}
	return l
}

// FindSimilar returns the owner's closest record when its similarity reaches
// the threshold, or nil.
func (s *Store) FindSimilar(ctx context.Context, text, ownerID string) (*MemoryRecord, error) {
	hits, err := s.index.Query(ctx, text, 1, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: find similar: %v", contractx.ErrMemoryStore, err)
	}
	rank(hits)
	if len(hits) == 0 || hits[0].Score < s.threshold {
		return nil, nil
	}
	best := hits[0]
	return &best, nil
}

// Upsert updates the near-duplicate record in place, keeping its ID, or
// inserts a new one.
func (s *Store) Upsert(ctx context.Context, in contractx.MemoryInput) (contractx.MemoryWriteResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return contractx.MemoryWriteResult{}, fmt.Errorf("%w: memory text is empty", contractx.ErrValidation)
	}
	l := s.ownerLock(in.OwnerID)
	l.Lock()
	defer l.Unlock()

	existing, err := s.FindSimilar(ctx, text, in.OwnerID)
	if err != nil {
		return contractx.MemoryWriteResult{}, err
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = SourceConversation
	}
	rec := MemoryRecord{
		ID:                  s.newID(),
		Text:                text,
		Timestamp:           s.now().UTC(),
		Source:              source,
		OwnerID:             in.OwnerID,
		OriginalUserMessage: in.OriginalUserMessage,
	}
	updated := existing != nil
	if updated {
		rec.ID = existing.ID
	}
	if err := s.index.Put(ctx, rec); err != nil {
		return contractx.MemoryWriteResult{}, fmt.Errorf("%w: put: %v", contractx.ErrMemoryStore, err)
	}
	log.Debug().Str("owner_id", in.OwnerID).Str("memory_id", rec.ID).Bool("updated", updated).Msg("memory stored")
	return contractx.MemoryWriteResult{ID: rec.ID, Updated: updated}, nil
}

// Search returns at most k of the owner's records, most similar first with
// ties broken by ID. k <= 0 uses the configured top k.
func (s *Store) Search(ctx context.Context, query string, k int, ownerID string) ([]contractx.MemoryHit, error) {
	if k <= 0 {
		k = s.topK
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	recs, err := s.index.Query(ctx, query, k, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", contractx.ErrMemoryStore, err)
	}
	rank(recs)
	if len(recs) > k {
		recs = recs[:k]
	}
	out := make([]contractx.MemoryHit, 0, len(recs))
	for _, r := range recs {
		out = append(out, contractx.MemoryHit{ID: r.ID, Text: r.Text, Score: r.Score})
	}
	return out, nil
}

// ListByOwner returns every record of the owner, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]MemoryRecord, error) {
	recs, err := s.index.All(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", contractx.ErrMemoryStore, err)
	}
	for i := range recs {
		recs[i].Score = 0
	}
	sortNewestFirst(recs)
	return recs, nil
}
